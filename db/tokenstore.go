/*
 * Copyright 2024 the apnsgate authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package db persists device tokens the feedback service reported invalid, so
// the daemon stops pushing to them across restarts.
package db

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis"
)

// DatabaseConfig selects and configures the token store engine.
type DatabaseConfig struct {
	// Engine is "redis" or "memory".
	Engine   string
	Host     string
	Port     int
	Name     string
	Password string
}

// TokenStore records device tokens the gateway marked invalid.
type TokenStore interface {
	// MarkInvalid records that token stopped being a valid recipient at ts.
	MarkInvalid(token string, ts time.Time) error
	// IsInvalid reports whether token has been marked invalid.
	IsInvalid(token string) (bool, error)
	// InvalidTokens lists every token currently marked invalid.
	InvalidTokens() ([]string, error)
	// Remove clears a token, e.g. after the device re-registered.
	Remove(token string) error
}

// NewTokenStore builds the store named by conf.Engine. An empty engine means
// memory.
func NewTokenStore(conf *DatabaseConfig) (TokenStore, error) {
	switch conf.Engine {
	case "", "memory":
		return newMemoryTokenStore(), nil
	case "redis":
		return newRedisTokenStore(conf)
	}
	return nil, fmt.Errorf("unsupported database engine %q", conf.Engine)
}

const redisKeyPrefix = "apnsgate:badtoken:"

// redisClient is the subset of the redis API the store uses; narrowed so
// tests can substitute it.
type redisClient interface {
	Set(key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(key string) *redis.StringCmd
	Del(keys ...string) *redis.IntCmd
	Exists(keys ...string) *redis.IntCmd
	Keys(pattern string) *redis.StringSliceCmd
}

type redisTokenStore struct {
	client redisClient
}

var _ TokenStore = &redisTokenStore{}

func newRedisTokenStore(conf *DatabaseConfig) (*redisTokenStore, error) {
	host := conf.Host
	if host == "" {
		host = "localhost"
	}
	port := conf.Port
	if port <= 0 {
		port = 6379
	}
	dbNum := 0
	if conf.Name != "" {
		n, err := strconv.Atoi(conf.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid redis database name %q: %v", conf.Name, err)
		}
		dbNum = n
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: conf.Password,
		DB:       dbNum,
	})
	return &redisTokenStore{client: client}, nil
}

func (s *redisTokenStore) MarkInvalid(token string, ts time.Time) error {
	return s.client.Set(redisKeyPrefix+token, ts.Unix(), 0).Err()
}

func (s *redisTokenStore) IsInvalid(token string) (bool, error) {
	n, err := s.client.Exists(redisKeyPrefix + token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisTokenStore) InvalidTokens() ([]string, error) {
	keys, err := s.client.Keys(redisKeyPrefix + "*").Result()
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(keys))
	for _, key := range keys {
		tokens = append(tokens, key[len(redisKeyPrefix):])
	}
	return tokens, nil
}

func (s *redisTokenStore) Remove(token string) error {
	return s.client.Del(redisKeyPrefix + token).Err()
}

type memoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

var _ TokenStore = &memoryTokenStore{}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]time.Time)}
}

func (s *memoryTokenStore) MarkInvalid(token string, ts time.Time) error {
	s.mu.Lock()
	s.tokens[token] = ts
	s.mu.Unlock()
	return nil
}

func (s *memoryTokenStore) IsInvalid(token string) (bool, error) {
	s.mu.RLock()
	_, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok, nil
}

func (s *memoryTokenStore) InvalidTokens() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]string, 0, len(s.tokens))
	for token := range s.tokens {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (s *memoryTokenStore) Remove(token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}

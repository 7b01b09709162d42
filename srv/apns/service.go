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

package apns

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	cache "github.com/uniqush/cache2"
	"github.com/uniqush/log"

	"github.com/pushgate/apnsgate/db"
	"github.com/pushgate/apnsgate/push"
	"github.com/pushgate/apnsgate/srv/apns/binary"
	"github.com/pushgate/apnsgate/srv/apns/common"
)

// GatewayConfig selects the gateway endpoints and the client credentials, and
// carries the knobs the protocol leaves open.
type GatewayConfig struct {
	// Sandbox selects the sandbox endpoints instead of production.
	Sandbox bool
	// Addr overrides the gateway address (host:port). Empty uses the
	// standard endpoint for the selected environment.
	Addr string
	// FeedbackAddr overrides the feedback address. Empty derives it from
	// the gateway selection.
	FeedbackAddr string

	CertFile   string
	KeyFile    string
	SkipVerify bool

	// MaxPayloadSize is the payload byte ceiling. 0 means the default
	// (2048; early gateway versions enforced 256).
	MaxPayloadSize int
	// BufferSize and BufferLifetime bound the replay history. 0 means the
	// defaults (100 frames, 5 minutes).
	BufferSize     int
	BufferLifetime time.Duration

	ConnectTimeout time.Duration

	// FrameVersion selects the notification wire format: 1 (enhanced,
	// default) or 2 (item-framed, carries the priority byte).
	FrameVersion int
}

func (c *GatewayConfig) gatewayAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	if c.Sandbox {
		return common.GatewayAddrSandbox
	}
	return common.GatewayAddr
}

func (c *GatewayConfig) feedbackAddr() string {
	if c.FeedbackAddr != "" {
		return c.FeedbackAddr
	}
	switch c.gatewayAddr() {
	case common.GatewayAddr:
		return common.FeedbackAddr
	case common.GatewayAddrSandbox:
		return common.FeedbackAddrSandbox
	}
	// A custom gateway address (e.g. a simulator) gets the feedback port on
	// the same host.
	host := c.gatewayAddr()
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return fmt.Sprintf("%s:2196", host)
}

func (c *GatewayConfig) maxPayloadSize() int {
	if c.MaxPayloadSize > 0 {
		return c.MaxPayloadSize
	}
	return common.DefaultMaxPayloadSize
}

func (c *GatewayConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return common.DefaultConnectTimeout
}

// Notification is one send request: a device token in hex, the payload, and
// the per-notification metadata the enhanced formats carry.
type Notification struct {
	TokenHex string
	Payload  *Payload

	// Identifier correlates asynchronous gateway errors with this
	// notification. 0 means auto-assign.
	Identifier uint32
	// Expiry is a unix timestamp; 0 tells the gateway not to store the
	// notification for later delivery.
	Expiry uint32
	// Priority is only on the wire with FrameVersion 2. 0 means immediate.
	Priority uint8

	// Untracked selects the simple frame format: no identifier or expiry on
	// the wire, so the gateway cannot report errors against it and it is
	// never recorded for replay. Send returns identifier 0 for these.
	Untracked bool
}

// Service is the caller API: it owns a gateway connection, assigns
// identifiers, and exposes the feedback service.
type Service struct {
	conf   *GatewayConfig
	logger log.Logger
	conn   *binary.GatewayConn

	// tokens remembers device tokens this process pushed to, so feedback
	// records can be correlated back to known recipients.
	tokens *cache.SimpleCache
	store  db.TokenStore

	report func(push.Error)

	counter uint32
}

// NewService wires a Service from config. store may be nil; feedback results
// are then only reported, not persisted.
func NewService(conf *GatewayConfig, store db.TokenStore, logger log.Logger) *Service {
	bufSize := conf.BufferSize
	if bufSize <= 0 {
		bufSize = common.DefaultBufferSize
	}
	bufLifetime := conf.BufferLifetime
	if bufLifetime <= 0 {
		bufLifetime = common.DefaultBufferLifetime
	}
	manager := binary.NewTLSConnManager(conf.gatewayAddr(), conf.CertFile, conf.KeyFile, conf.SkipVerify, conf.connectTimeout())
	buffer := binary.NewSentBuffer(bufSize, bufLifetime)
	return &Service{
		conf:   conf,
		logger: logger,
		conn:   binary.NewGatewayConn(manager, buffer, logger),
		tokens: cache.NewSimple(1024),
		store:  store,
	}
}

// Connect establishes the gateway connection.
func (s *Service) Connect() push.Error {
	return s.conn.Connect()
}

// Close shuts the gateway connection down.
func (s *Service) Close() error {
	return s.conn.Close()
}

// OnError installs the callback receiving every error response the gateway
// pushes back, before the automatic discard/resend flow runs.
func (s *Service) OnError(handler func(*binary.ErrorFrame)) {
	s.conn.SetErrorHandler(handler)
}

// OnReport installs the callback receiving transport faults, unsubscribe
// updates from the feedback service, and other reportable conditions.
func (s *Service) OnReport(handler func(push.Error)) {
	s.report = handler
	s.conn.SetReportHandler(handler)
}

// Send encodes and writes one notification, returning the identifier that a
// later error response would reference. Construction failures (bad token
// hex, token known invalid, oversized payload, reserved-key collision)
// surface here and never reach the network.
func (s *Service) Send(n *Notification) (uint32, push.Error) {
	token, terr := decodeToken(n.TokenHex)
	if terr != nil {
		return 0, terr
	}
	tokenHex := strings.ToLower(n.TokenHex)
	if s.store != nil {
		invalid, serr := s.store.IsInvalid(tokenHex)
		if serr != nil {
			// A flaky store must not block sends.
			s.logger.Warnf("Invalid-token lookup for %s failed: %v", tokenHex, serr)
		} else if invalid {
			return 0, push.NewBadNotificationWithDetails(fmt.Sprintf("device token %s was reported invalid by the feedback service", tokenHex))
		}
	}
	payload, perr := n.Payload.Marshal(s.conf.maxPayloadSize())
	if perr != nil {
		return 0, perr
	}

	if n.Untracked {
		if err := s.conn.SendUntracked(binary.EncodeSimple(token, payload)); err != nil {
			return 0, err
		}
		s.tokens.Set(tokenHex, time.Now())
		return 0, nil
	}

	identifier := n.Identifier
	if identifier == 0 {
		identifier = atomic.AddUint32(&s.counter, 1)
	}
	priority := n.Priority
	if priority == 0 {
		priority = binary.PriorityImmediate
	}

	var frame []byte
	if s.conf.FrameVersion == 2 {
		frame = binary.EncodeFrameV2(identifier, n.Expiry, priority, token, payload)
	} else {
		frame = binary.EncodeEnhanced(identifier, n.Expiry, token, payload)
	}

	if err := s.conn.Send(identifier, frame); err != nil {
		return identifier, err
	}
	s.tokens.Set(tokenHex, time.Now())
	return identifier, nil
}

// Feedback connects to the feedback service, drains one session, and returns
// the records. Records for tokens this process has pushed to drive the
// unsubscribe flow via processFeedback.
func (s *Service) Feedback() ([]binary.FeedbackRecord, push.Error) {
	manager := binary.NewTLSConnManager(s.conf.feedbackAddr(), s.conf.CertFile, s.conf.KeyFile, s.conf.SkipVerify, s.conf.connectTimeout())
	conn, err := manager.NewConn()
	if err != nil {
		return nil, push.NewConnectionError(err)
	}
	defer conn.Close()

	records, rerr := binary.ReadAllFeedback(conn)
	if rerr != nil {
		s.logger.Warnf("Feedback session ended mid-record: %v", rerr)
	}
	s.processFeedback(records)
	return records, nil
}

// processFeedback correlates feedback records with the tokens this process
// has pushed to. Only a known token produces an unsubscribe update and a
// store mark; a send newer than the feedback timestamp means the device may
// have re-registered since, so the token is kept.
func (s *Service) processFeedback(records []binary.FeedbackRecord) {
	for i := range records {
		rec := &records[i]
		tokenHex := rec.TokenHex()
		cached := s.tokens.Delete(tokenHex)
		if cached == nil {
			continue
		}
		if sentAt, ok := cached.(time.Time); ok && sentAt.After(rec.Timestamp) {
			s.logger.Infof("Feedback for token %s predates the last send to it, keeping it", tokenHex)
			if s.store != nil {
				// Newer activity beats a stale mark left by an earlier run.
				if serr := s.store.Remove(tokenHex); serr != nil {
					s.logger.Errorf("Failed to clear invalid mark for token %s: %v", tokenHex, serr)
				}
			}
			continue
		}
		s.logger.Infof("Feedback: token %s invalid since %v", tokenHex, rec.Timestamp)
		if s.report != nil {
			s.report(push.NewUnsubscribeUpdate(tokenHex, rec.Timestamp))
		}
		if s.store != nil {
			if serr := s.store.MarkInvalid(tokenHex, rec.Timestamp); serr != nil {
				s.logger.Errorf("Failed to persist invalid token %s: %v", tokenHex, serr)
			}
		}
	}
}

// State reports the gateway connection state.
func (s *Service) State() binary.State {
	return s.conn.State()
}

func decodeToken(tokenHex string) ([]byte, push.Error) {
	if len(tokenHex)%2 != 0 {
		return nil, push.NewBadNotificationWithDetails("device token hex length is odd")
	}
	token, err := hex.DecodeString(tokenHex)
	if err != nil {
		return nil, push.NewBadNotificationWithDetails(fmt.Sprintf("device token is not valid hex: %v", err))
	}
	if len(token) == 0 {
		return nil, push.NewBadNotificationWithDetails("device token is empty")
	}
	return token, nil
}

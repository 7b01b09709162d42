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
 *
 */

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/uniqush/goconf/conf"
	"github.com/uniqush/log"

	"github.com/pushgate/apnsgate/db"
	apns "github.com/pushgate/apnsgate/srv/apns"
)

const defaultFeedbackInterval = 10 * time.Minute

func extractLogLevel(loglevel string) (int, string) {
	warningMsg := ""
	var level int
	switch strings.ToLower(loglevel) {
	case "alert":
		level = log.LOGLEVEL_ALERT
	case "error":
		level = log.LOGLEVEL_ERROR
	case "warn", "warning":
		level = log.LOGLEVEL_WARN
	case "standard", "verbose", "info":
		level = log.LOGLEVEL_INFO
	case "debug":
		level = log.LOGLEVEL_DEBUG
	default:
		warningMsg = fmt.Sprintf("Unsupported loglevel %q. Supported values: alert, error, warn/warning, standard/verbose/info, and debug", loglevel)
		level = log.LOGLEVEL_INFO
	}
	return level, warningMsg
}

func loadLogger(writer io.Writer, c *conf.ConfigFile, prefix string) (log.Logger, error) {
	logswitch, err := c.GetBool("Log", "log")
	if err != nil {
		logswitch = true
	}

	if writer == nil {
		writer = os.Stderr
	}

	loglevel, err := c.GetString("Log", "loglevel")
	if err != nil {
		loglevel = "standard"
	}
	var level int
	warningMsg := ""

	if logswitch {
		level, warningMsg = extractLogLevel(loglevel)
	} else {
		level = log.LOGLEVEL_SILENT
	}

	logger := log.NewLogger(writer, prefix, level)
	if warningMsg != "" {
		logger.Warn(warningMsg)
	}
	return logger, nil
}

// OpenConfig reads the config file, or an error if it cannot be parsed.
func OpenConfig(filename string) (c *conf.ConfigFile, err error) {
	c, err = conf.ReadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file %q: %v", filename, err)
	}
	return c, nil
}

// LoadGatewayConfig returns a representation of the [Gateway] and [Feedback]
// sections, with documented defaults for everything left out.
func LoadGatewayConfig(c *conf.ConfigFile) (*apns.GatewayConfig, error) {
	gc := new(apns.GatewayConfig)

	gc.Sandbox, _ = c.GetBool("Gateway", "sandbox")
	gc.Addr, _ = c.GetString("Gateway", "addr")
	gc.FeedbackAddr, _ = c.GetString("Feedback", "addr")
	gc.SkipVerify, _ = c.GetBool("Gateway", "skipverify")

	var err error
	gc.CertFile, err = c.GetString("Gateway", "cert")
	if err != nil || gc.CertFile == "" {
		return nil, fmt.Errorf("[Gateway] section requires a cert setting")
	}
	gc.KeyFile, err = c.GetString("Gateway", "key")
	if err != nil || gc.KeyFile == "" {
		return nil, fmt.Errorf("[Gateway] section requires a key setting")
	}

	if n, err := c.GetInt("Gateway", "maxpayloadsize"); err == nil && n > 0 {
		gc.MaxPayloadSize = n
	}
	if n, err := c.GetInt("Gateway", "buffersize"); err == nil && n > 0 {
		gc.BufferSize = n
	}
	if n, err := c.GetInt("Gateway", "bufferlifetime"); err == nil && n > 0 {
		gc.BufferLifetime = time.Duration(n) * time.Second
	}
	if n, err := c.GetInt("Gateway", "connecttimeout"); err == nil && n > 0 {
		gc.ConnectTimeout = time.Duration(n) * time.Second
	}
	if n, err := c.GetInt("Gateway", "frameversion"); err == nil {
		if n != 1 && n != 2 {
			return nil, fmt.Errorf("unsupported frameversion %d, expected 1 or 2", n)
		}
		gc.FrameVersion = n
	}
	return gc, nil
}

// LoadFeedbackInterval returns how often to poll the feedback service.
func LoadFeedbackInterval(c *conf.ConfigFile) time.Duration {
	if n, err := c.GetInt("Feedback", "interval"); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultFeedbackInterval
}

// LoadDatabaseConfig returns a representation of the [Database] section.
func LoadDatabaseConfig(c *conf.ConfigFile) (*db.DatabaseConfig, error) {
	dc := new(db.DatabaseConfig)
	var err error
	dc.Engine, err = c.GetString("Database", "engine")
	if err != nil || dc.Engine == "" {
		dc.Engine = "memory"
	}
	dc.Host, err = c.GetString("Database", "host")
	if err != nil || dc.Host == "" {
		dc.Host = "localhost"
	}
	dc.Port, err = c.GetInt("Database", "port")
	if err != nil || dc.Port <= 0 {
		dc.Port = -1
	}
	dc.Name, err = c.GetString("Database", "name")
	if err != nil {
		dc.Name = "0"
	}
	dc.Password, _ = c.GetString("Database", "password")
	return dc, nil
}

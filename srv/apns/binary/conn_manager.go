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

package binary

// This file contains the connection managers, which open encrypted sockets to
// the gateway based on a config. The GatewayConn state machine consumes them;
// it never dials on its own.

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/uniqush/log"
)

// ConnManager abstracts creating TLS sockets to the gateway.
// It is called whenever the state machine needs a fresh transport: on the
// first Connect and on every reconnect after an error response.
type ConnManager interface {
	NewConn() (net.Conn, error)
}

// loggingConnManager decorates a ConnManager and logs opened connections.
type loggingConnManager struct {
	manager ConnManager
	logger  log.Logger
}

var _ ConnManager = &loggingConnManager{}

func (m *loggingConnManager) NewConn() (net.Conn, error) {
	conn, err := m.manager.NewConn()
	if conn != nil {
		m.logger.Infof("Connection to gateway opened: %v to %v", conn.LocalAddr(), conn.RemoteAddr())
	}
	return conn, err
}

func newLoggingConnManager(manager ConnManager, logger log.Logger) *loggingConnManager {
	return &loggingConnManager{
		manager: manager,
		logger:  logger,
	}
}

type tlsConnManager struct {
	conf    *tls.Config
	err     error
	addr    string
	timeout time.Duration
}

var _ ConnManager = &tlsConnManager{}

// NewTLSConnManager creates a ConnManager dialing addr with the client
// certificate loaded from certFile/keyFile. The handshake is bounded by
// timeout.
func NewTLSConnManager(addr, certFile, keyFile string, skipVerify bool, timeout time.Duration) ConnManager {
	manager := &tlsConnManager{
		addr:    addr,
		timeout: timeout,
	}
	var cert tls.Certificate
	cert, manager.err = tls.LoadX509KeyPair(certFile, keyFile)
	if manager.err != nil {
		return manager
	}
	manager.conf = &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: skipVerify,
	}
	return manager
}

func (m *tlsConnManager) NewConn() (net.Conn, error) {
	if m.err != nil {
		return nil, fmt.Errorf("error initializing gateway conn manager: %v", m.err)
	}
	dialer := &net.Dialer{Timeout: m.timeout}
	tlsconn, err := tls.DialWithDialer(dialer, "tcp", m.addr, m.conf)
	if err != nil {
		if err.Error() == "EOF" {
			err = fmt.Errorf("certificate is probably invalid/expired: %v", err)
		}
		return nil, err
	}
	return tlsconn, nil
}

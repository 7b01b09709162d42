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

// The gateway never acknowledges success; it reports failure asynchronously
// with a 6-byte error response and then drops the connection. Everything
// written after the bad notification but before the response was observed is
// presumed lost, so the connection keeps a bounded history of sent frames and
// replays the tail after reconnecting. That replay is the central correctness
// property of this package.

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uniqush/log"

	"github.com/pushgate/apnsgate/push"
	"github.com/pushgate/apnsgate/srv/apns/common"
)

// State of the gateway connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErrorDetected
	StateReconnecting
)

// reconnectRetryAfter is the wait suggested to the caller once the bounded
// reconnect attempts are exhausted.
const reconnectRetryAfter = time.Minute

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateErrorDetected:
		return "ErrorDetected"
	case StateReconnecting:
		return "Reconnecting"
	}
	return "Unknown"
}

// GatewayConn owns one logical connection to the gateway: dialing, writing
// frames, listening for the asynchronous error response, and the
// disconnect/reconnect/resend cycle that follows one.
//
// All state transitions and buffer mutations are serialized behind a single
// mutex; concurrent Sends and concurrent error handling never interleave.
type GatewayConn struct {
	manager ConnManager
	buffer  *SentBuffer
	logger  log.Logger

	mu     sync.Mutex
	conn   net.Conn
	state  State
	gen    uint64 // connection generation; listener events from replaced conns are stale
	closed bool

	errorHandler  func(*ErrorFrame)
	reportHandler func(push.Error)

	writeTimeout      time.Duration
	maxReconnectTries uint64
}

// NewGatewayConn creates a disconnected GatewayConn writing through manager
// and recording sent frames in buffer.
func NewGatewayConn(manager ConnManager, buffer *SentBuffer, logger log.Logger) *GatewayConn {
	return &GatewayConn{
		manager:           newLoggingConnManager(manager, logger),
		buffer:            buffer,
		logger:            logger,
		state:             StateDisconnected,
		writeTimeout:      common.DefaultConnectTimeout,
		maxReconnectTries: 3,
	}
}

// SetErrorHandler installs the callback invoked with every decoded error
// response, before the discard/resend flow runs.
func (c *GatewayConn) SetErrorHandler(handler func(*ErrorFrame)) {
	c.mu.Lock()
	c.errorHandler = handler
	c.mu.Unlock()
}

// SetReportHandler installs the callback receiving transport faults and other
// reportable conditions. Without one, reports only go to the logger.
func (c *GatewayConn) SetReportHandler(handler func(push.Error)) {
	c.mu.Lock()
	c.reportHandler = handler
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *GatewayConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *GatewayConn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debugf("Gateway connection %v -> %v", c.state, s)
	c.state = s
}

// Connect establishes the encrypted transport and starts the inbound
// listener. On transport failure the state returns to Disconnected and the
// failure is returned; retrying is the caller's concern.
func (c *GatewayConn) Connect() push.Error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return push.NewError("connection is closed")
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateReconnecting {
		c.setStateLocked(StateConnecting)
	}
	c.mu.Unlock()

	conn, err := c.manager.NewConn()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if conn != nil {
			conn.Close()
		}
		return push.NewError("connection is closed")
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		return push.NewConnectionError(err)
	}
	c.conn = conn
	c.gen++
	c.setStateLocked(StateConnected)
	go c.listen(conn, c.gen)
	return nil
}

// Send writes one frame to the gateway and records it for replay. The frame
// is written as a single atomic unit and frames go out in the exact order
// Send was called. Valid only in the Connected state.
//
// The protocol is fire-and-forget: a nil return means the bytes were written,
// not that the notification was delivered.
func (c *GatewayConn) Send(identifier uint32, frame []byte) push.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeFrameLocked(frame); err != nil {
		return err
	}
	c.buffer.Record(identifier, frame)
	return nil
}

// SendUntracked writes a frame that carries no identifier, such as a simple
// notification. The gateway cannot correlate an error response with it, so it
// is never recorded for replay.
func (c *GatewayConn) SendUntracked(frame []byte) push.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeFrameLocked(frame)
}

func (c *GatewayConn) writeFrameLocked(frame []byte) push.Error {
	if c.state != StateConnected || c.conn == nil {
		return push.NewNotConnectedError(c.state.String())
	}
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := writen(c.conn, frame); err != nil {
		conn := c.conn
		c.conn = nil
		c.gen++
		conn.Close()
		c.setStateLocked(StateDisconnected)
		return push.NewConnectionError(err)
	}
	return nil
}

// Close shuts the connection down. Any blocked listener is discarded and the
// state returns to Disconnected. Close is idempotent.
func (c *GatewayConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// listen reads 6-byte error responses from the transport until it closes.
// One listener goroutine runs per established connection.
func (c *GatewayConn) listen(conn net.Conn, gen uint64) {
	var buf [ErrorFrameLength]byte
	for {
		_, err := io.ReadFull(conn, buf[:])
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			c.handleTransportClosed(gen, err)
			return
		}
		frame, derr := DecodeError(buf[:])
		if derr != nil {
			// Undecodable bytes must not kill the listener. Drop what we
			// read and wait for the next well-formed response.
			c.report(push.NewErrorf("undecodable bytes from gateway: %v", derr))
			continue
		}
		c.handleErrorFrame(gen, frame)
		// The gateway drops the connection after an error response and a
		// fresh listener is started on reconnect.
		return
	}
}

// handleTransportClosed reacts to the transport closing without an error
// response: the connection returns to Disconnected, the buffer is preserved,
// and the fault is reported. No automatic retry.
func (c *GatewayConn) handleTransportClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	c.report(push.NewConnectionError(err))
}

// handleErrorFrame runs the discard/reconnect/resend cycle for one decoded
// error response.
func (c *GatewayConn) handleErrorFrame(gen uint64, frame *ErrorFrame) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateErrorDetected)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	retained := c.buffer.DiscardThrough(frame.Identifier)
	handler := c.errorHandler
	c.mu.Unlock()

	c.logger.Errorf("Gateway rejected notification %d: %s", frame.Identifier, common.StatusText(frame.Status))
	if handler != nil {
		handler(frame)
	}
	c.resend(retained)
}

// resend reconnects and replays the retained frames in original send order.
// If reconnection fails the frames go back into the buffer and the state
// returns to Disconnected.
func (c *GatewayConn) resend(retained []SentEntry) {
	c.mu.Lock()
	if c.closed {
		c.restoreLocked(retained)
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxReconnectTries)
	err := backoff.Retry(func() error {
		if cerr := c.Connect(); cerr != nil {
			return cerr
		}
		return nil
	}, bo)
	if err != nil {
		c.mu.Lock()
		c.restoreLocked(retained)
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		// The frames are back in the buffer; a later Connect picks them up.
		c.report(push.NewRetryErrorWithReason(reconnectRetryAfter, err))
		return
	}

	if len(retained) == 0 {
		return
	}
	c.report(push.NewInfof("Resending %d notifications sent after the rejected one", len(retained)))
	for i, entry := range retained {
		if serr := c.Send(entry.Identifier, entry.Frame); serr != nil {
			c.mu.Lock()
			c.restoreLocked(retained[i:])
			c.mu.Unlock()
			c.report(push.NewErrorf("resend of notification %d failed: %v", entry.Identifier, serr))
			return
		}
	}
}

// restoreLocked puts unsent entries back so a later cycle can replay them.
func (c *GatewayConn) restoreLocked(entries []SentEntry) {
	for _, e := range entries {
		c.buffer.Record(e.Identifier, e.Frame)
	}
}

func (c *GatewayConn) report(err push.Error) {
	c.mu.Lock()
	handler := c.reportHandler
	c.mu.Unlock()
	if _, ok := err.(*push.InfoReport); ok {
		c.logger.Infof("%v", err)
	} else {
		c.logger.Errorf("%v", err)
	}
	if handler != nil {
		handler(err)
	}
}

// writen keeps calling Write until the whole frame is on the wire or a real
// error surfaces. It gives up after 10 temporary errors rather than busy-loop.
func writen(w io.Writer, buf []byte) error {
	remainingTemporaryErrors := 10
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Temporary() && !nerr.Timeout() && remainingTemporaryErrors > 0 {
				remainingTemporaryErrors--
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Package mocks implements a mock gateway endpoint, for unit tests.
// Instead of a TCP socket, the mock connection moves bytes over channels, one
// per direction, so tests can play both sides of the protocol.
package mocks

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

var errConnClosed = errors.New("mock connection was closed")

// mockHalf is one direction of a mock connection.
type mockHalf struct {
	channel chan byte
	done    <-chan struct{}
}

var _ io.ReadWriter = &mockHalf{}

func newMockHalf(done <-chan struct{}) *mockHalf {
	return &mockHalf{
		channel: make(chan byte),
		done:    done,
	}
}

func (h *mockHalf) Write(b []byte) (int, error) {
	for i, x := range b {
		select {
		case h.channel <- x:
		case <-h.done:
			return i, errConnClosed
		}
	}
	return len(b), nil
}

func (h *mockHalf) Read(b []byte) (int, error) {
	for i := range b {
		select {
		case x, ok := <-h.channel:
			if !ok {
				return i, errConnClosed
			}
			b[i] = x
		case <-h.done:
			return i, errConnClosed
		}
	}
	return len(b), nil
}

// MockNetConn is a net.Conn whose peer is the test itself: the test reads
// what the client wrote with ReadNotification and injects gateway responses
// with Reply.
type MockNetConn struct {
	toClient  *mockHalf // gateway -> client
	toGateway *mockHalf // client -> gateway
	done      chan struct{}
	closeOnce sync.Once
}

var _ net.Conn = &MockNetConn{}

// NewMockNetConn creates an open mock connection.
func NewMockNetConn() *MockNetConn {
	done := make(chan struct{})
	return &MockNetConn{
		toClient:  newMockHalf(done),
		toGateway: newMockHalf(done),
		done:      done,
	}
}

func (c *MockNetConn) Read(b []byte) (int, error) {
	return c.toClient.Read(b)
}

func (c *MockNetConn) Write(b []byte) (int, error) {
	return c.toGateway.Write(b)
}

// Close unblocks every pending read and write on both directions. It may be
// called from the client and the test side.
func (c *MockNetConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Closed reports whether Close has been called.
func (c *MockNetConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *MockNetConn) LocalAddr() net.Addr  { return mockAddr("client") }
func (c *MockNetConn) RemoteAddr() net.Addr { return mockAddr("gateway") }

func (c *MockNetConn) SetDeadline(t time.Time) error      { return nil }
func (c *MockNetConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *MockNetConn) SetWriteDeadline(t time.Time) error { return nil }

type mockAddr string

func (a mockAddr) Network() string { return "mock" }
func (a mockAddr) String() string  { return string(a) }

// MockNotification is one notification the client wrote, decoded from
// whichever of the three wire formats it used.
type MockNotification struct {
	Command    uint8
	Identifier uint32
	Expiry     uint32
	Priority   uint8
	DevToken   []byte
	Payload    []byte
}

func (n *MockNotification) String() string {
	token := strings.ToLower(hex.EncodeToString(n.DevToken))
	return fmt.Sprintf("command=%v; id=%v; expiry=%v; token=%v; payload=%v",
		n.Command, n.Identifier, n.Expiry, token, string(n.Payload))
}

// ReadNotification decodes the next notification frame the tested client
// wrote. It blocks until one arrives or the connection closes.
func (c *MockNetConn) ReadNotification() (*MockNotification, error) {
	conn := io.Reader(c.toGateway)
	notif := new(MockNotification)
	if err := binary.Read(conn, binary.BigEndian, &notif.Command); err != nil {
		return nil, err
	}
	switch notif.Command {
	case 0:
		var err error
		if notif.DevToken, err = readSized(conn); err != nil {
			return nil, err
		}
		if notif.Payload, err = readSized(conn); err != nil {
			return nil, err
		}
	case 1:
		if err := binary.Read(conn, binary.BigEndian, &notif.Identifier); err != nil {
			return nil, err
		}
		if err := binary.Read(conn, binary.BigEndian, &notif.Expiry); err != nil {
			return nil, err
		}
		var err error
		if notif.DevToken, err = readSized(conn); err != nil {
			return nil, err
		}
		if notif.Payload, err = readSized(conn); err != nil {
			return nil, err
		}
	case 2:
		if err := c.readFramedItems(conn, notif); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown command %d in notification frame", notif.Command)
	}
	return notif, nil
}

// readSized reads a u16 big-endian length and that many bytes.
func readSized(conn io.Reader) ([]byte, error) {
	var length uint16
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	data := make([]byte, int(length))
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *MockNetConn) readFramedItems(conn io.Reader, notif *MockNotification) error {
	var frameLen uint32
	if err := binary.Read(conn, binary.BigEndian, &frameLen); err != nil {
		return err
	}
	remaining := int(frameLen)
	for remaining > 0 {
		var itemID uint8
		if err := binary.Read(conn, binary.BigEndian, &itemID); err != nil {
			return err
		}
		item, err := readSized(conn)
		if err != nil {
			return err
		}
		remaining -= 3 + len(item)
		if remaining < 0 {
			return fmt.Errorf("item %d overruns the declared frame length %d", itemID, frameLen)
		}
		switch itemID {
		case 1:
			notif.DevToken = item
		case 2:
			notif.Payload = item
		case 3:
			if len(item) != 4 {
				return fmt.Errorf("identifier item has length %d, want 4", len(item))
			}
			notif.Identifier = binary.BigEndian.Uint32(item)
		case 4:
			if len(item) != 4 {
				return fmt.Errorf("expiry item has length %d, want 4", len(item))
			}
			notif.Expiry = binary.BigEndian.Uint32(item)
		case 5:
			if len(item) != 1 {
				return fmt.Errorf("priority item has length %d, want 1", len(item))
			}
			notif.Priority = item[0]
		default:
			return fmt.Errorf("unknown item id %d in v2 frame", itemID)
		}
	}
	return nil
}

// Reply injects a gateway error response for the given identifier into the
// client's inbound stream.
func (c *MockNetConn) Reply(status uint8, identifier uint32) error {
	buf := make([]byte, 6)
	buf[0] = 8
	buf[1] = status
	binary.BigEndian.PutUint32(buf[2:], identifier)
	_, err := c.toClient.Write(buf)
	return err
}

// InjectRaw writes arbitrary bytes into the client's inbound stream, for
// exercising how the client treats garbage from the gateway.
func (c *MockNetConn) InjectRaw(b []byte) error {
	_, err := c.toClient.Write(b)
	return err
}

// WriteFeedback injects one feedback record (u32 timestamp, u16 token length,
// token) into the client's inbound stream.
func (c *MockNetConn) WriteFeedback(timestamp uint32, token []byte) error {
	buf := make([]byte, 6+len(token))
	binary.BigEndian.PutUint32(buf[0:], timestamp)
	binary.BigEndian.PutUint16(buf[4:], uint16(len(token)))
	copy(buf[6:], token)
	_, err := c.toClient.Write(buf)
	return err
}

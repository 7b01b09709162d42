// Package binary implements the old APNS binary provider protocol (over an
// encrypted TCP socket): the notification frame formats, the 6-byte error
// response, the sent-notification replay buffer, the gateway connection state
// machine and the feedback stream decoder.
package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pushgate/apnsgate/srv/apns/common"
)

// ErrorFrameLength is the fixed size of the gateway's error response.
const ErrorFrameLength = 6

// ErrIncompleteFrame is reported by DecodeError when fewer than 6 bytes are
// available. No input is consumed; the caller buffers and retries once more
// bytes arrive.
var ErrIncompleteFrame = errors.New("incomplete error frame")

// MalformedFrameError is reported when the bytes on the wire do not start
// with the error-response command byte.
type MalformedFrameError struct {
	Command uint8
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed error frame: unexpected command byte %d", e.Command)
}

// ErrorFrame is the gateway's asynchronous error response, correlating a
// status code with the identifier of the offending notification.
type ErrorFrame struct {
	Status     uint8
	Identifier uint32
}

func (f *ErrorFrame) String() string {
	return fmt.Sprintf("id=%d status=%d (%s)", f.Identifier, f.Status, common.StatusText(f.Status))
}

// DecodeError parses a 6-byte error response: command (8), status, u32
// identifier, all big-endian. It never blocks and consumes nothing on
// incomplete input. Unknown status codes are surfaced as-is; StatusText maps
// them to the unknown description.
func DecodeError(buf []byte) (*ErrorFrame, error) {
	if len(buf) < ErrorFrameLength {
		return nil, ErrIncompleteFrame
	}
	if buf[0] != common.CommandError {
		return nil, &MalformedFrameError{Command: buf[0]}
	}
	return &ErrorFrame{
		Status:     buf[1],
		Identifier: binary.BigEndian.Uint32(buf[2:6]),
	}, nil
}

// EncodeSimple builds a simple notification frame: command (0), u16 token
// length, token, u16 payload length, payload. No delivery tracking; the
// gateway cannot report errors against it.
func EncodeSimple(token, payload []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 1+2+len(token)+2+len(payload)))
	buf.WriteByte(common.CommandSimple)
	binary.Write(buf, binary.BigEndian, uint16(len(token)))
	buf.Write(token)
	binary.Write(buf, binary.BigEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// EncodeEnhanced builds an enhanced notification frame: command (1), u32
// identifier, u32 expiry, u16 token length, token, u16 payload length,
// payload. All integers big-endian; this layout is a bit-exact contract with
// the gateway.
//
// An expiry of 0 tells the gateway not to store the notification for later
// delivery.
func EncodeEnhanced(identifier, expiry uint32, token, payload []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 1+4+4+2+len(token)+2+len(payload)))
	buf.WriteByte(common.CommandEnhanced)
	binary.Write(buf, binary.BigEndian, identifier)
	binary.Write(buf, binary.BigEndian, expiry)
	binary.Write(buf, binary.BigEndian, uint16(len(token)))
	buf.Write(token)
	binary.Write(buf, binary.BigEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// Priorities carried by the v2 item-framed format.
const (
	PriorityImmediate     uint8 = 10
	PriorityConservePower uint8 = 5
)

// EncodeFrameV2 builds a protocol v2 notification: command (2), u32 frame
// length, then five items each prefixed with a 1-byte item id and u16 item
// length: device token (1), payload (2), identifier (3), expiry (4),
// priority (5).
func EncodeFrameV2(identifier, expiry uint32, priority uint8, token, payload []byte) []byte {
	frameLen := (3 + len(token)) + (3 + len(payload)) + (3 + 4) + (3 + 4) + (3 + 1)
	buf := bytes.NewBuffer(make([]byte, 0, 5+frameLen))
	buf.WriteByte(common.CommandFrame)
	binary.Write(buf, binary.BigEndian, uint32(frameLen))

	writeItemHeader := func(id uint8, itemLength uint16) {
		buf.WriteByte(id)
		binary.Write(buf, binary.BigEndian, itemLength)
	}

	writeItemHeader(1, uint16(len(token)))
	buf.Write(token)

	writeItemHeader(2, uint16(len(payload)))
	buf.Write(payload)

	writeItemHeader(3, 4)
	binary.Write(buf, binary.BigEndian, identifier)

	writeItemHeader(4, 4)
	binary.Write(buf, binary.BigEndian, expiry)

	writeItemHeader(5, 1)
	buf.WriteByte(priority)

	return buf.Bytes()
}

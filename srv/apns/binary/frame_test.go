package binary

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pushgate/apnsgate/srv/apns/common"
	"github.com/pushgate/apnsgate/testutil"
)

var testToken = bytes.Repeat([]byte{0xab}, 32)
var testPayload = []byte(`{"aps":{"alert":"hi"}}`)

func TestEncodeSimpleLayout(t *testing.T) {
	frame := EncodeSimple(testToken, testPayload)

	testutil.ExpectEquals(t, uint8(0), frame[0], "command byte")
	testutil.ExpectEquals(t, uint16(32), binary.BigEndian.Uint16(frame[1:3]), "token length")
	testutil.ExpectEquals(t, testToken, frame[3:35], "token bytes")
	testutil.ExpectEquals(t, uint16(len(testPayload)), binary.BigEndian.Uint16(frame[35:37]), "payload length")
	testutil.ExpectEquals(t, testPayload, frame[37:], "payload bytes")
}

// Decode the enhanced frame by its documented byte layout and expect every
// field back exactly.
func TestEncodeEnhancedRoundTrip(t *testing.T) {
	frame := EncodeEnhanced(0xdeadbeef, 0x12345678, testToken, testPayload)

	testutil.ExpectEquals(t, uint8(1), frame[0], "command byte")
	testutil.ExpectEquals(t, uint32(0xdeadbeef), binary.BigEndian.Uint32(frame[1:5]), "identifier")
	testutil.ExpectEquals(t, uint32(0x12345678), binary.BigEndian.Uint32(frame[5:9]), "expiry")
	testutil.ExpectEquals(t, uint16(32), binary.BigEndian.Uint16(frame[9:11]), "token length")
	testutil.ExpectEquals(t, testToken, frame[11:43], "token bytes")
	testutil.ExpectEquals(t, uint16(len(testPayload)), binary.BigEndian.Uint16(frame[43:45]), "payload length")
	testutil.ExpectEquals(t, testPayload, frame[45:], "payload bytes")
	testutil.ExpectEquals(t, 45+len(testPayload), len(frame), "total length")
}

func TestEncodeEnhancedZeroExpiry(t *testing.T) {
	frame := EncodeEnhanced(7, 0, testToken, testPayload)
	testutil.ExpectEquals(t, uint32(0), binary.BigEndian.Uint32(frame[5:9]), "zero expiry on the wire")
}

func TestEncodeFrameV2Layout(t *testing.T) {
	frame := EncodeFrameV2(42, 1000, PriorityConservePower, testToken, testPayload)

	testutil.ExpectEquals(t, uint8(2), frame[0], "command byte")
	wantFrameLen := (3 + 32) + (3 + len(testPayload)) + 7 + 7 + 4
	testutil.ExpectEquals(t, uint32(wantFrameLen), binary.BigEndian.Uint32(frame[1:5]), "frame length")

	// Item 1: device token.
	testutil.ExpectEquals(t, uint8(1), frame[5], "item 1 id")
	testutil.ExpectEquals(t, uint16(32), binary.BigEndian.Uint16(frame[6:8]), "item 1 length")
	testutil.ExpectEquals(t, testToken, frame[8:40], "item 1 token")
	// Item 2: payload.
	testutil.ExpectEquals(t, uint8(2), frame[40], "item 2 id")
	payloadEnd := 43 + len(testPayload)
	testutil.ExpectEquals(t, testPayload, frame[43:payloadEnd], "item 2 payload")
	// Item 3: identifier.
	testutil.ExpectEquals(t, uint8(3), frame[payloadEnd], "item 3 id")
	testutil.ExpectEquals(t, uint32(42), binary.BigEndian.Uint32(frame[payloadEnd+3:payloadEnd+7]), "item 3 identifier")
	// Item 4: expiry.
	testutil.ExpectEquals(t, uint8(4), frame[payloadEnd+7], "item 4 id")
	testutil.ExpectEquals(t, uint32(1000), binary.BigEndian.Uint32(frame[payloadEnd+10:payloadEnd+14]), "item 4 expiry")
	// Item 5: priority.
	testutil.ExpectEquals(t, uint8(5), frame[payloadEnd+14], "item 5 id")
	testutil.ExpectEquals(t, PriorityConservePower, frame[payloadEnd+17], "item 5 priority")
	testutil.ExpectEquals(t, payloadEnd+18, len(frame), "total length")
}

func TestDecodeError(t *testing.T) {
	raw := []byte{8, common.Status8InvalidToken, 0, 0, 0, 3}
	frame, err := DecodeError(raw)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	testutil.ExpectEquals(t, common.Status8InvalidToken, frame.Status, "status")
	testutil.ExpectEquals(t, uint32(3), frame.Identifier, "identifier")
}

// Short input is incomplete, not malformed: appending the missing bytes and
// retrying must complete the parse.
func TestDecodeErrorIncomplete(t *testing.T) {
	raw := []byte{8, common.Status1ProcessingError, 0, 0, 1, 0}
	for i := 0; i < ErrorFrameLength; i++ {
		if _, err := DecodeError(raw[:i]); err != ErrIncompleteFrame {
			t.Errorf("DecodeError on %d bytes: got %v, want ErrIncompleteFrame", i, err)
		}
	}
	frame, err := DecodeError(raw)
	if err != nil {
		t.Fatalf("Completed input failed to decode: %v", err)
	}
	testutil.ExpectEquals(t, uint32(256), frame.Identifier, "identifier after completion")
}

func TestDecodeErrorMalformed(t *testing.T) {
	raw := []byte{2, 0, 0, 0, 0, 9}
	_, err := DecodeError(raw)
	merr, ok := err.(*MalformedFrameError)
	if !ok {
		t.Fatalf("Expected MalformedFrameError, got %v", err)
	}
	testutil.ExpectEquals(t, uint8(2), merr.Command, "offending command byte")
}

// New gateway status codes must decode rather than fail.
func TestDecodeErrorUnknownStatus(t *testing.T) {
	raw := []byte{8, 99, 0, 0, 0, 1}
	frame, err := DecodeError(raw)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	testutil.ExpectEquals(t, uint8(99), frame.Status, "unknown status preserved")
	testutil.ExpectStringEquals(t, "unknown error", common.StatusText(frame.Status), "unknown status text")
}

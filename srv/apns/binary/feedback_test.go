package binary

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/pushgate/apnsgate/testutil"
)

func feedbackBytes(timestamp uint32, token []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, timestamp)
	binary.Write(&buf, binary.BigEndian, uint16(len(token)))
	buf.Write(token)
	return buf.Bytes()
}

func TestFeedbackEmptyStream(t *testing.T) {
	records, err := ReadAllFeedback(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Empty stream should read cleanly, got %v", err)
	}
	testutil.ExpectEquals(t, 0, len(records), "no records in an empty session")
}

func TestFeedbackSingleRecord(t *testing.T) {
	token := bytes.Repeat([]byte{0xcd}, 32)
	reader := NewFeedbackReader(bytes.NewReader(feedbackBytes(1700000000, token)))

	record, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	testutil.ExpectEquals(t, time.Unix(1700000000, 0).UTC(), record.Timestamp, "timestamp")
	testutil.ExpectEquals(t, token, record.DeviceToken, "token bytes")
	testutil.ExpectStringEquals(t, "cdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd", record.TokenHex(), "lowercase hex token")

	if _, err := reader.Next(); err != io.EOF {
		t.Fatalf("Expected io.EOF after the last record, got %v", err)
	}
}

func TestFeedbackMultipleRecords(t *testing.T) {
	var stream bytes.Buffer
	tokens := [][]byte{
		bytes.Repeat([]byte{0x01}, 32),
		bytes.Repeat([]byte{0x02}, 32),
		{0x0a, 0x0b}, // tokens are length-prefixed, not fixed-size
	}
	for i, token := range tokens {
		stream.Write(feedbackBytes(uint32(1600000000+i), token))
	}

	records, err := ReadAllFeedback(&stream)
	if err != nil {
		t.Fatalf("ReadAllFeedback failed: %v", err)
	}
	testutil.ExpectEquals(t, 3, len(records), "record count")
	for i, record := range records {
		testutil.ExpectEquals(t, time.Unix(int64(1600000000+i), 0).UTC(), record.Timestamp, "timestamp order preserved")
		testutil.ExpectEquals(t, tokens[i], record.DeviceToken, "token bytes")
	}
}

func TestFeedbackTruncatedRecord(t *testing.T) {
	token := bytes.Repeat([]byte{0xee}, 32)
	whole := feedbackBytes(1700000000, token)
	second := feedbackBytes(1700000001, token)

	// Cut the second record short at several points: inside the timestamp,
	// inside the length prefix, and inside the token.
	for _, cut := range []int{2, 5, 10} {
		stream := append(append([]byte{}, whole...), second[:cut]...)
		records, err := ReadAllFeedback(bytes.NewReader(stream))
		if err != io.ErrUnexpectedEOF {
			t.Fatalf("Cut at %d: expected io.ErrUnexpectedEOF, got %v", cut, err)
		}
		testutil.ExpectEquals(t, 1, len(records), "complete records kept on truncation")
		testutil.ExpectEquals(t, token, records[0].DeviceToken, "first record intact")
	}
}

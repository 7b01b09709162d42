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

// The feedback service speaks its own little wire format: a stream of
// records, each a u32 unix timestamp, a u16 token length and the raw device
// token, until the service closes the connection.

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

// FeedbackRecord identifies one device token the gateway has marked as no
// longer a valid recipient, and when it observed that.
type FeedbackRecord struct {
	Timestamp   time.Time
	DeviceToken []byte
}

// TokenHex returns the device token as a lowercase hex string, the form
// callers use to compare against their subscription records.
func (r *FeedbackRecord) TokenHex() string {
	return strings.ToLower(hex.EncodeToString(r.DeviceToken))
}

// FeedbackReader incrementally decodes a feedback-service byte stream.
// Records are produced one at a time as bytes arrive; the whole stream is
// never materialized first.
type FeedbackReader struct {
	r io.Reader
}

// NewFeedbackReader decodes feedback records from r.
func NewFeedbackReader(r io.Reader) *FeedbackReader {
	return &FeedbackReader{r: r}
}

// Next returns the next record, or io.EOF once the stream is exhausted.
// A stream ending mid-record reports io.ErrUnexpectedEOF.
func (fr *FeedbackReader) Next() (*FeedbackRecord, error) {
	var timestamp uint32
	var tokenLen uint16
	if err := binary.Read(fr.r, binary.BigEndian, &timestamp); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	if err := binary.Read(fr.r, binary.BigEndian, &tokenLen); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	token := make([]byte, int(tokenLen))
	if _, err := io.ReadFull(fr.r, token); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &FeedbackRecord{
		Timestamp:   time.Unix(int64(timestamp), 0).UTC(),
		DeviceToken: token,
	}, nil
}

// ReadAllFeedback drains one feedback session from r. An empty stream yields
// an empty slice. If the transport closes mid-record, the complete records
// decoded so far are returned along with the error.
func ReadAllFeedback(r io.Reader) ([]FeedbackRecord, error) {
	fr := NewFeedbackReader(r)
	var records []FeedbackRecord
	for {
		rec, err := fr.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, *rec)
	}
}

package common

import (
	"bytes"
	"encoding/json"
)

// MarshalJSONUnescaped serializes v without the HTML escaping encoding/json
// applies by default. The gateway compares the payload against its size
// ceiling byte for byte, and expanding '&' or '<' to a six-byte \u escape
// inflates the encoding for no benefit.
func MarshalJSONUnescaped(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode appends a trailing newline that is not part of the payload.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

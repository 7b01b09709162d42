package common

import (
	"testing"

	"github.com/pushgate/apnsgate/testutil"
)

func TestMarshalJSONUnescaped(t *testing.T) {
	encoded, err := MarshalJSONUnescaped(map[string]interface{}{"msg": "a & b <c>"})
	if err != nil {
		t.Fatalf("MarshalJSONUnescaped failed: %v", err)
	}
	testutil.ExpectStringEquals(t, `{"msg":"a & b <c>"}`, string(encoded), "no HTML escaping, no trailing newline")
}

func TestMarshalJSONUnescapedNested(t *testing.T) {
	encoded, err := MarshalJSONUnescaped(map[string]interface{}{
		"aps":  map[string]interface{}{"alert": "hi", "badge": 1},
		"link": "https://example.com/a?b=1&c=2",
	})
	if err != nil {
		t.Fatalf("MarshalJSONUnescaped failed: %v", err)
	}
	testutil.ExpectJSONIsEquivalent(t, []byte(`{"aps":{"alert":"hi","badge":1},"link":"https://example.com/a?b=1&c=2"}`), encoded)
}

func TestStatusText(t *testing.T) {
	testutil.ExpectStringEquals(t, "invalid token", StatusText(Status8InvalidToken), "known status")
	testutil.ExpectStringEquals(t, "unknown error", StatusText(42), "unknown status")
}

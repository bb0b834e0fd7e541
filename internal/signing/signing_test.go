package signing

import (
	"strings"
	"testing"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz012345"

func TestSignDeterministic(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_type":"order.created","data":{"id":42}}`)

	first := Sign(payload, testSecret)
	second := Sign(payload, testSecret)
	if first != second {
		t.Fatalf("Sign() not deterministic: %q != %q", first, second)
	}
	if !strings.HasPrefix(first, "sha256=") {
		t.Fatalf("Sign() = %q, want sha256= prefix", first)
	}
	if len(first) != len("sha256=")+64 {
		t.Fatalf("len(Sign()) = %d, want %d", len(first), len("sha256=")+64)
	}
}

func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	// RFC 4231 test case 2.
	got := Sign([]byte("what do ya want for nothing?"), "Jefe")
	want := "sha256=5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
}

func TestSignDependsOnSecretAndBody(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"a":1}`)
	if Sign(payload, testSecret) == Sign(payload, testSecret+"x") {
		t.Fatal("Sign() should differ for different secrets")
	}
	if Sign(payload, testSecret) == Sign([]byte(`{"a": 1}`), testSecret) {
		t.Fatal("Sign() should differ for different body bytes")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"a":1}`)
	signature := Sign(payload, testSecret)

	tests := []struct {
		name      string
		payload   []byte
		secret    string
		signature string
		want      bool
	}{
		{name: "valid", payload: payload, secret: testSecret, signature: signature, want: true},
		{name: "tampered body", payload: []byte(`{"a":2}`), secret: testSecret, signature: signature},
		{name: "wrong secret", payload: payload, secret: "other", signature: signature},
		{name: "missing prefix", payload: payload, secret: testSecret, signature: strings.TrimPrefix(signature, "sha256=")},
		{name: "not hex", payload: payload, secret: testSecret, signature: "sha256=zz"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Verify(tt.payload, tt.secret, tt.signature); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

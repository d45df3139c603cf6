package keys

import (
	"strings"
	"testing"
)

func TestParsePublicKeyRoundTrip(t *testing.T) {
	t.Parallel()
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	parsed, err := ParsePublicKey(id.PublicKey().String())
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !parsed.Equal(id.PublicKey()) {
		t.Error("parsed key does not match original")
	}
}

func TestParsePublicKeyInvalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"non-hex", strings.Repeat("z", 64)},
		{"short", "abcd"},
		{"not on curve", strings.Repeat("ff", 32)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParsePublicKey(tc.input); err == nil {
				t.Errorf("expected error for %q", tc.input)
			}
		})
	}
}

func TestPublicKeyIsZero(t *testing.T) {
	t.Parallel()
	var zero PublicKey
	if !zero.IsZero() {
		t.Error("zero value must report IsZero")
	}

	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id.PublicKey().IsZero() {
		t.Error("generated key must not report IsZero")
	}
}

func TestPublicKeyString(t *testing.T) {
	t.Parallel()
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	s := id.PublicKey().String()
	if len(s) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(s))
	}
}

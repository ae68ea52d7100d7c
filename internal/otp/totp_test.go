package otp

import (
	"testing"
	"time"
)

// RFC 6238 test secret: base32 of the ASCII string "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestCodeAtKnownVectors(t *testing.T) {
	cases := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}

	for _, c := range cases {
		got, err := CodeAt(rfcSecret, time.Unix(c.unix, 0).UTC())
		if err != nil {
			t.Fatalf("CodeAt(%d) returned error: %v", c.unix, err)
		}
		if got != c.want {
			t.Errorf("CodeAt(%d) = %s, want %s", c.unix, got, c.want)
		}
	}
}

func TestCodeAtNormalizesSecret(t *testing.T) {
	got, err := CodeAt("gezd gnbv gy3t qojq gezd gnbv gy3t qojq", time.Unix(59, 0).UTC())
	if err != nil {
		t.Fatalf("CodeAt with spaced lowercase secret: %v", err)
	}
	if got != "287082" {
		t.Errorf("normalized secret produced %s, want 287082", got)
	}
}

func TestCodeAtInvalidSecret(t *testing.T) {
	if _, err := CodeAt("not-base32!", time.Unix(59, 0).UTC()); err == nil {
		t.Fatal("expected error for invalid secret")
	}
}

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

func testCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	opts := []CodecOption{}
	if now != nil {
		opts = append(opts, CodecWithClock(now))
	}
	codec, err := NewCodec(testKey, "identra", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestIssueAndDecodeRoundtrip(t *testing.T) {
	codec := testCodec(t, nil)

	token, issued, err := codec.Issue("alice", []string{"ADMIN", "user.read"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.ID == "" {
		t.Fatalf("expected a jti")
	}

	claims, err := codec.DecodeAndVerify(token)
	if err != nil {
		t.Fatalf("DecodeAndVerify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Issuer != "identra" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ID != issued.ID {
		t.Fatalf("jti changed across decode: %q vs %q", claims.ID, issued.ID)
	}
	if got := claims.ScopeList(); len(got) != 2 || got[0] != "ADMIN" || got[1] != "user.read" {
		t.Fatalf("unexpected scope %v", got)
	}
	if !claims.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", claims.ExpiresAt)
	}
}

func TestIssueGeneratesUniqueJTI(t *testing.T) {
	codec := testCodec(t, nil)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		_, claims, err := codec.Issue("alice", nil, time.Minute)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, dup := seen[claims.ID]; dup {
			t.Fatalf("duplicate jti %q", claims.ID)
		}
		seen[claims.ID] = struct{}{}
	}
}

func TestDecodeMalformed(t *testing.T) {
	codec := testCodec(t, nil)
	for _, token := range []string{"", "not-a-token", "a.b", "a.b.c.d", "!!!.###.$$$"} {
		if _, err := codec.DecodeAndVerify(token); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("token %q: expected ErrMalformedToken, got %v", token, err)
		}
	}
}

func TestDecodeBadSignature(t *testing.T) {
	codec := testCodec(t, nil)
	other, err := NewCodec([]byte(strings.Repeat("x", 64)), "identra")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := other.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.DecodeAndVerify(token); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// Flipping payload bytes must also fail verification, not parse.
	good, _, err := codec.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "AA" + "." + parts[2]
	if _, err := codec.DecodeAndVerify(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestDecodeToleratesExpiry(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	codec := testCodec(t, func() time.Time { return past })

	token, _, err := codec.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.DecodeAndVerify(token)
	if err != nil {
		t.Fatalf("expected expired token to decode, got %v", err)
	}
	if !claims.ExpiresAt.Before(time.Now()) {
		t.Fatalf("expected decoded expiry in the past, got %v", claims.ExpiresAt)
	}
}

func TestDecodeForeignIssuer(t *testing.T) {
	codec := testCodec(t, nil)
	// Exact comparison: even a case-differing issuer is foreign.
	for _, issuer := range []string{"somewhere-else", "IDENTRA"} {
		foreign, err := NewCodec(testKey, issuer)
		if err != nil {
			t.Fatalf("NewCodec: %v", err)
		}
		token, _, err := foreign.Issue("alice", nil, time.Hour)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := codec.DecodeAndVerify(token); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("issuer %q: expected ErrMalformedToken, got %v", issuer, err)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec([]byte("short"), "identra"); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
	if _, err := NewCodec(testKey, "  "); err == nil {
		t.Fatalf("expected empty issuer to be rejected")
	}
}

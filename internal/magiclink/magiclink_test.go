package magiclink

import (
	"testing"
	"time"
)

var secret = []byte("this-is-a-32-byte-test-secret!!")

func TestMintVerify_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := Payload{SID: "sess_1", Role: "supplier", JTI: "jti-1", Exp: now.Add(10 * time.Minute).Unix()}
	token, hash, err := Mint(secret, p)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if hash != HashToken(token) {
		t.Fatalf("expected returned hash to match HashToken(token)")
	}

	got, err := Verify(secret, token, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != p {
		t.Fatalf("expected round-tripped payload to match, got %+v want %+v", got, p)
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := Payload{SID: "sess_1", Role: "buyer", JTI: "jti-2", Exp: now.Unix()}
	token, _, err := Mint(secret, p)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := Verify(secret, token, now); err != nil {
		t.Fatalf("expected token valid at exactly exp, got %v", err)
	}
	if _, err := Verify(secret, token, now.Add(time.Second)); err != ErrExpired {
		t.Fatalf("expected ErrExpired one second past exp, got %v", err)
	}
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := Payload{SID: "sess_1", Role: "supplier", JTI: "jti-3", Exp: now.Add(time.Hour).Unix()}
	token, _, err := Mint(secret, p)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	tampered := token[:len(token)-1] + "x"
	if _, err := Verify(secret, tampered, now); err == nil {
		t.Fatalf("expected tampered token to fail verification")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := Payload{SID: "sess_1", Role: "supplier", JTI: "jti-4", Exp: now.Add(time.Hour).Unix()}
	token, _, err := Mint(secret, p)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	otherSecret := []byte("a-completely-different-32b-secret")
	if _, err := Verify(otherSecret, token, now); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerify_RejectsMalformedToken(t *testing.T) {
	if _, err := Verify(secret, "not-a-valid-token", time.Now()); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

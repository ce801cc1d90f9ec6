// Package magiclink mints and verifies the HMAC-signed capability tokens used to let a
// supplier or buyer countersign a session from an emailed link without an account.
//
// Callers persist only the SHA-256 of a token (HashToken), never the token itself; the token
// is a signed, self-describing payload rather than a single opaque key.
package magiclink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Payload is the signed content of a magic-link token.
type Payload struct {
	SID  string `json:"sid"`  // session UID
	Role string `json:"role"` // "supplier" or "buyer"
	JTI  string `json:"jti"`  // unique token id, guards single use
	Exp  int64  `json:"exp"`  // unix seconds
}

var (
	// ErrExpired is returned when a token's exp has already passed.
	ErrExpired = errors.New("magiclink: token expired")
	// ErrBadSignature is returned when the HMAC over the payload does not match.
	ErrBadSignature = errors.New("magiclink: signature mismatch")
	// ErrMalformed is returned when the token is not of the form payload.signature.
	ErrMalformed = errors.New("magiclink: malformed token")
)

// Mint produces a token of the form base64url(payload-json).base64url(hmac-sha256(secret, payload-json))
// and the SHA-256 hex digest of the full token, which is what callers should persist for lookup.
func Mint(secret []byte, p Payload) (token string, tokenHash string, err error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	encodedBody := base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	token = encodedBody + "." + sig
	tokenHash = HashToken(token)
	return token, tokenHash, nil
}

// HashToken returns the lookup key stored alongside a magic link: the token is never stored
// in plaintext, only its digest, so a leaked database dump cannot be used to mint sessions.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Verify checks the HMAC over token and, if it matches, that the token has not expired. now is
// injected so callers can test expiry boundaries deterministically.
func Verify(secret []byte, token string, now time.Time) (Payload, error) {
	encodedBody, sig, ok := splitToken(token)
	if !ok {
		return Payload{}, ErrMalformed
	}

	body, err := base64.RawURLEncoding.DecodeString(encodedBody)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	if !hmac.Equal(expected, got) {
		return Payload{}, ErrBadSignature
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, ErrMalformed
	}
	if now.Unix() > p.Exp {
		return Payload{}, ErrExpired
	}
	return p, nil
}

func splitToken(token string) (body, sig string, ok bool) {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}

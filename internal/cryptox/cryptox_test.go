package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverAddress_AcceptsBothVConventions(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	digest := Keccak256UTF8("attestation-fixture")
	sig, err := Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// sig already ends in {0,1}; recover directly.
	got, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover (v in {0,1}): %v", err)
	}
	if got != addr {
		t.Fatalf("expected %s, got %s", addr.Hex(), got.Hex())
	}

	// rewrite trailing byte to the {27,28} convention and confirm it still recovers.
	legacy := make([]byte, 65)
	copy(legacy, sig)
	legacy[64] += 27
	got2, err := RecoverAddress(digest, legacy)
	if err != nil {
		t.Fatalf("recover (v in {27,28}): %v", err)
	}
	if got2 != addr {
		t.Fatalf("expected %s, got %s", addr.Hex(), got2.Hex())
	}
}

func TestNormalizeRecoveryID_RejectsBadLength(t *testing.T) {
	_, err := NormalizeRecoveryID([]byte{1, 2, 3})
	if err != ErrInvalidSignatureLength {
		t.Fatalf("expected ErrInvalidSignatureLength, got %v", err)
	}
}

func TestNormalizeRecoveryID_RejectsBadRecoveryByte(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 4
	if _, err := NormalizeRecoveryID(sig); err == nil {
		t.Fatalf("expected error for invalid recovery id")
	}
}

func TestEqualAddress_CaseInsensitiveAndChecksummed(t *testing.T) {
	lower := "0x5aeda56215b167893e80b4fe645ba6d5bab767de"
	upperMixed := "0x5AEDa56215b167893e80B4fE645BA6d5Bab767DE"
	if !EqualAddress(lower, upperMixed) {
		t.Fatalf("expected addresses to compare equal regardless of case")
	}
	if EqualAddress(lower, "0x0000000000000000000000000000000000dead") {
		t.Fatalf("expected distinct addresses to compare unequal")
	}
}

func TestIsMagicValue(t *testing.T) {
	good, _ := hex.DecodeString("1626ba7e")
	if !IsMagicValue(good) {
		t.Fatalf("expected magic value to be accepted")
	}
	bad, _ := hex.DecodeString("deadbeef")
	if IsMagicValue(bad) {
		t.Fatalf("expected non-magic value to be rejected")
	}
}

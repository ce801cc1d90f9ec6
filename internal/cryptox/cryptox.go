// Package cryptox wraps the Ethereum crypto primitives this codebase needs: Keccak-256,
// address recovery accepting either v-encoding, and the ERC-1271 magic value.
//
// go-ethereum's crypto package is the standard ecosystem choice for Keccak-256 and secp256k1
// recovery, so callers reach for it directly rather than a lighter substitute.
package cryptox

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC1271MagicValue is the 4-byte value a contract wallet's isValidSignature must return
// to indicate acceptance.
const ERC1271MagicValue = "0x1626ba7e"

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// Keccak256UTF8 hashes the UTF-8 bytes of s, used for shipmentId = keccak256(utf8(shipment.id)).
func Keccak256UTF8(s string) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256([]byte(s)))
	return out
}

// ErrInvalidSignatureLength is returned when a signature is not the expected 65 bytes.
var ErrInvalidSignatureLength = errors.New("cryptox: signature must be 65 bytes")

// NormalizeRecoveryID rewrites the trailing recovery byte of a 65-byte r||s||v signature so
// go-ethereum's SigToPub receives v in {0,1}, accepting either the {27,28} or {0,1} convention.
func NormalizeRecoveryID(sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignatureLength
	}
	out := make([]byte, 65)
	copy(out, sig)
	switch out[64] {
	case 27, 28:
		out[64] -= 27
	case 0, 1:
		// already normalized
	default:
		return nil, errors.New("cryptox: signature recovery id must be 0, 1, 27, or 28")
	}
	return out, nil
}

// RecoverAddress recovers the signer address from a digest and a 65-byte r||s||v signature.
// digest must already be the final EIP-712 hash (or any 32-byte hash) to recover over.
func RecoverAddress(digest [32]byte, sig []byte) (common.Address, error) {
	normalized, err := NormalizeRecoveryID(sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a 65-byte r||s||v signature (v in {0,1}) over digest using priv. Used only by
// tests and local tooling to construct fixtures; production signing happens client-side.
func Sign(digest [32]byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest[:], priv)
}

// EqualAddress compares two hex addresses case-insensitively, then canonically checksummed,
// used during signature recovery.
func EqualAddress(a, b string) bool {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a).Hex() == common.HexToAddress(b).Hex()
}

// ChecksumAddress returns the EIP-55 checksummed form of a hex address.
func ChecksumAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// IsMagicValue reports whether an ERC-1271 isValidSignature return value equals the accepted
// magic value 0x1626ba7e.
func IsMagicValue(ret []byte) bool {
	if len(ret) < 4 {
		return false
	}
	return "0x"+common.Bytes2Hex(ret[:4]) == ERC1271MagicValue
}

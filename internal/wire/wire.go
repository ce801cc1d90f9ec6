// Package wire holds the boundary conversions between the wire (JSON, decimal-string) and
// internal (*big.Int) representations of large integers.
package wire

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseChainOrderID accepts either a "0x"-prefixed hex or a bare decimal string and returns the
// canonical decimal-string form: never infer intent from format, always store the decimal
// string.
func ParseChainOrderID(s string) (string, error) {
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return "", fmt.Errorf("wire: %q is not a valid hex or decimal chainOrderId", s)
	}
	if n.Sign() < 0 {
		return "", fmt.Errorf("wire: chainOrderId must be non-negative, got %q", s)
	}
	return n.String(), nil
}

// ParseUint256 parses a decimal-string wire value into a *big.Int, rejecting negative values.
func ParseUint256(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("wire: %q is not a valid decimal uint256", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("wire: value must be non-negative, got %q", s)
	}
	return n, nil
}

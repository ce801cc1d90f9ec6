// Package sigverify verifies a PickupApproval/DropApproval signature against an expected
// signer, falling back to ERC-1271 for contract wallets: ecrecover first, then a
// contract-wallet fallback, with the slow contract-code lookup cached behind a small
// mutex-guarded map.
package sigverify

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/accordsai/podx/internal/cryptox"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractCaller is the subset of ethclient.Client used to probe for and call contract
// wallets. Satisfied by *ethclient.Client; a narrow interface keeps this package testable
// without a live RPC endpoint.
type ContractCaller interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var isValidSignatureSelector = crypto.Keccak256([]byte("isValidSignature(bytes32,bytes)"))[:4]

// Verifier verifies EIP-712 signatures, falling back to ERC-1271 for addresses that carry
// contract code. It caches the EOA/contract classification for the lifetime of the process
// since an address's code does not change under normal chain operation.
type Verifier struct {
	caller ContractCaller

	mu         sync.Mutex
	isContract map[string]bool
}

// New constructs a Verifier backed by caller. caller may be nil if only EOA signatures need
// to be verified (e.g. in unit tests); any ERC-1271 fallback will then fail closed.
func New(caller ContractCaller) *Verifier {
	return &Verifier{caller: caller, isContract: make(map[string]bool)}
}

// Verify reports whether sig is a valid signature over digest by expectedSigner, trying ECDSA
// recovery first and, only if that does not match, an ERC-1271 contract-wallet check.
func (v *Verifier) Verify(ctx context.Context, expectedSigner string, digest [32]byte, sig []byte) (bool, error) {
	recovered, err := cryptox.RecoverAddress(digest, sig)
	if err == nil && cryptox.EqualAddress(recovered.Hex(), expectedSigner) {
		return true, nil
	}

	isContract, err := v.classify(ctx, expectedSigner)
	if err != nil {
		return false, err
	}
	if !isContract {
		return false, nil
	}
	return v.verifyERC1271(ctx, expectedSigner, digest, sig)
}

func (v *Verifier) classify(ctx context.Context, addr string) (bool, error) {
	key := cryptox.ChecksumAddress(addr)
	v.mu.Lock()
	cached, ok := v.isContract[key]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}
	if v.caller == nil {
		return false, nil
	}
	code, err := v.caller.CodeAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return false, fmt.Errorf("sigverify: code lookup for %s: %w", addr, err)
	}
	isContract := len(code) > 0
	v.mu.Lock()
	v.isContract[key] = isContract
	v.mu.Unlock()
	return isContract, nil
}

func (v *Verifier) verifyERC1271(ctx context.Context, addr string, digest [32]byte, sig []byte) (bool, error) {
	if v.caller == nil {
		return false, nil
	}
	data := encodeIsValidSignatureCall(digest, sig)
	to := common.HexToAddress(addr)
	ret, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("sigverify: isValidSignature call to %s: %w", addr, err)
	}
	if len(ret) < 4 {
		return false, nil
	}
	return cryptox.IsMagicValue(ret[:4]), nil
}

// encodeIsValidSignatureCall hand-rolls the ABI call data for
// isValidSignature(bytes32,bytes) rather than pulling in a generated binding for one call shape.
func encodeIsValidSignatureCall(digest [32]byte, sig []byte) []byte {
	out := make([]byte, 0, 4+32+32+32+roundUp32(len(sig)))
	out = append(out, isValidSignatureSelector...)
	out = append(out, digest[:]...)
	out = append(out, leftPad32(big.NewInt(64).Bytes())...) // offset to dynamic bytes arg
	out = append(out, leftPad32(big.NewInt(int64(len(sig))).Bytes())...)
	padded := make([]byte, roundUp32(len(sig)))
	copy(padded, sig)
	out = append(out, padded...)
	return out
}

func roundUp32(n int) int {
	if n%32 == 0 {
		return n
	}
	return n + (32 - n%32)
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

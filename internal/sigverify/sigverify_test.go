package sigverify

import (
	"context"
	"math/big"
	"testing"

	"github.com/accordsai/podx/internal/cryptox"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestVerify_EOASignature(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	digest := cryptox.Keccak256UTF8("pickup-approval-fixture")
	sig, err := cryptox.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := New(nil)
	ok, err := v.Verify(context.Background(), addr.Hex(), digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected EOA signature to verify")
	}
}

func TestVerify_WrongSignerRejected(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := cryptox.Keccak256UTF8("pickup-approval-fixture")
	sig, err := cryptox.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := New(nil)
	ok, err := v.Verify(context.Background(), crypto.PubkeyToAddress(other.PublicKey).Hex(), digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatched signer to be rejected")
	}
}

// fakeContractCaller simulates a contract wallet that returns the ERC-1271 magic value only
// when accept is true.
type fakeContractCaller struct {
	code   []byte
	accept bool
}

func (f *fakeContractCaller) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code, nil
}

func (f *fakeContractCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ret := make([]byte, 32)
	if f.accept {
		copy(ret, []byte{0x16, 0x26, 0xba, 0x7e})
	}
	return ret, nil
}

func TestVerify_ContractWalletFallback(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	// EOA signs, but the "expected signer" is a contract wallet address that approves via ERC-1271.
	walletAddr := "0x00000000000000000000000000000000c0ffee"
	digest := cryptox.Keccak256UTF8("drop-approval-fixture")
	sig, err := cryptox.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := New(&fakeContractCaller{code: []byte{0x60, 0x80}, accept: true})
	ok, err := v.Verify(context.Background(), walletAddr, digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected contract wallet fallback to accept")
	}
}

func TestVerify_ContractWalletRejects(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	walletAddr := "0x00000000000000000000000000000000c0ffee"
	digest := cryptox.Keccak256UTF8("drop-approval-fixture")
	sig, err := cryptox.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := New(&fakeContractCaller{code: []byte{0x60, 0x80}, accept: false})
	ok, err := v.Verify(context.Background(), walletAddr, digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected contract wallet fallback to reject an unapproved signature")
	}
}

func TestVerify_NonContractAddressFailsClosed(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := cryptox.Keccak256UTF8("drop-approval-fixture")
	sig, err := cryptox.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := New(&fakeContractCaller{code: nil, accept: true})
	ok, err := v.Verify(context.Background(), "0x00000000000000000000000000000000c0ffee", digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected non-contract address with mismatched EOA signature to be rejected")
	}
}

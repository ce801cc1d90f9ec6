package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func testShipmentRegistryABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(shipmentRegistryABIJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return parsed
}

func TestParseDropApprovedReward_DecodesMatchingLog(t *testing.T) {
	parsed := testShipmentRegistryABI(t)
	registryAddr := common.HexToAddress("0x00000000000000000000000000000000000abc")

	ev := parsed.Events["DropApproved"]
	data, err := ev.Inputs.Pack(
		[32]byte{1},
		big.NewInt(42),
		[32]byte{2},
		uint64(1000),
		big.NewInt(1112),
		big.NewInt(11120),
	)
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	g := &Gateway{shipmentRegistryABI: parsed, shipmentRegistryAddr: registryAddr}
	logs := []*types.Log{
		{
			Address: registryAddr,
			Topics:  []common.Hash{ev.ID},
			Data:    data,
		},
	}

	reward := g.parseDropApprovedReward(logs)
	if reward == nil {
		t.Fatal("expected non-nil reward")
	}
	if reward.Cmp(big.NewInt(11120)) != 0 {
		t.Fatalf("reward = %s, want 11120", reward.String())
	}
}

func TestParseDropApprovedReward_IgnoresOtherAddressesAndEvents(t *testing.T) {
	parsed := testShipmentRegistryABI(t)
	registryAddr := common.HexToAddress("0x00000000000000000000000000000000000abc")
	otherAddr := common.HexToAddress("0x0000000000000000000000000000000000dead")

	pickupEv := parsed.Events["PickupApproved"]
	pickupData, err := pickupEv.Inputs.Pack([32]byte{1}, big.NewInt(42), [32]byte{2}, uint64(1000))
	if err != nil {
		t.Fatalf("pack pickup event data: %v", err)
	}

	dropEv := parsed.Events["DropApproved"]
	dropData, err := dropEv.Inputs.Pack([32]byte{1}, big.NewInt(42), [32]byte{2}, uint64(1000), big.NewInt(1), big.NewInt(99))
	if err != nil {
		t.Fatalf("pack drop event data: %v", err)
	}

	g := &Gateway{shipmentRegistryABI: parsed, shipmentRegistryAddr: registryAddr}
	logs := []*types.Log{
		{Address: registryAddr, Topics: []common.Hash{pickupEv.ID}, Data: pickupData},
		{Address: otherAddr, Topics: []common.Hash{dropEv.ID}, Data: dropData},
	}

	if reward := g.parseDropApprovedReward(logs); reward != nil {
		t.Fatalf("expected nil reward when no matching log present, got %s", reward.String())
	}
}

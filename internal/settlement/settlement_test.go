package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/accordsai/podx/internal/chain"
	"github.com/accordsai/podx/internal/eip712"
	"github.com/accordsai/podx/internal/geo"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/store"
)

// plannedTestDistance is the planned pickup-to-drop distance for newDropFixture's shipment
// coordinates, rounded the same way settleDrop rounds it. Tests pass this back as the
// session's claimed distanceMeters so settleDrop's deviation check never rejects the fixture.
var plannedTestDistance = geo.RoundMeters(geo.DistanceMeters(0, 0, 0, 0.01))

// fakeStore holds one shipment/order and records the params of the last completed settlement.
type fakeStore struct {
	shipment model.Shipment
	order    model.Order

	lastPickup *store.PickupSettlementParams
	lastDrop   *store.DropSettlementParams
}

func (f *fakeStore) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	if id != f.shipment.ID {
		return model.Shipment{}, store.ErrNotFound
	}
	return f.shipment, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if id != f.order.ID {
		return model.Order{}, store.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeStore) CompletePickupSettlement(ctx context.Context, p store.PickupSettlementParams) error {
	f.lastPickup = &p
	f.shipment.Status = model.ShipmentInTransit
	return nil
}

func (f *fakeStore) CompleteDropSettlement(ctx context.Context, p store.DropSettlementParams) error {
	f.lastDrop = &p
	f.shipment.Status = model.ShipmentDelivered
	return nil
}

// fakeChain lets each test dictate exactly what the chain gateway returns, including an
// on-chain courierReward far larger than distanceMeters*rewardPerMeter would allow, and a
// ConfirmDrop error to simulate a chain outage mid-settlement.
type fakeChain struct {
	confirmDropCalls int
	confirmDropErr   error
	dropResult       chain.DropResult
	escrowed         *big.Int
	onchainOrder     chain.OrderOnChain
}

func (f *fakeChain) ConfirmPickup(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte) (string, error) {
	return "0xpickuptx", nil
}

func (f *fakeChain) ConfirmDrop(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte, lineItemsJSON, metadataURI string) (chain.DropResult, error) {
	f.confirmDropCalls++
	if f.confirmDropErr != nil {
		return chain.DropResult{}, f.confirmDropErr
	}
	return f.dropResult, nil
}

func (f *fakeChain) EscrowedBalance(ctx context.Context, orderID *big.Int) (*big.Int, error) {
	if f.escrowed == nil {
		return big.NewInt(0), nil
	}
	return f.escrowed, nil
}

func (f *fakeChain) Order(ctx context.Context, orderID *big.Int) (chain.OrderOnChain, error) {
	return f.onchainOrder, nil
}

func newDropFixture() (*fakeStore, *fakeChain, *Coordinator) {
	st := &fakeStore{
		shipment: model.Shipment{
			ID:        "ship_1",
			OrderID:   "order_1",
			Supplier:  "0x111111111111111111111111111111111111111a",
			Buyer:     "0x111111111111111111111111111111111111111b",
			PickupLat: 0,
			PickupLon: 0,
			DropLat:   0,
			DropLon:   0.01,
			Status:    model.ShipmentInTransit,
		},
		order: model.Order{ID: "order_1", ChainOrderID: "42"},
	}
	// escrowedBalance-supplierAmount is large so the escrow cap in rewardCap never binds;
	// these tests are isolating the distanceMeters*rewardPerMeter cap.
	ch := &fakeChain{
		escrowed:     big.NewInt(1_000_000_000),
		onchainOrder: chain.OrderOnChain{Amount: big.NewInt(0)},
	}
	coord := New(st, ch, 10) // rewardPerMeter=10
	return st, ch, coord
}

func dropSession(distanceMeters int64) model.SigningSession {
	return model.SigningSession{
		SessionUID: "sess_1",
		ShipmentID: "ship_1",
		Kind:       model.SessionDrop,
		Supplier:   "0x111111111111111111111111111111111111111b",
		Payload: model.SessionPayload{
			DistanceMeters: distanceMeters,
		},
	}
}

// TestSettleDrop_CapsEventSourcedRewardToDistance covers the reward-monotonicity invariant for
// the case where ConfirmDrop returns a non-nil on-chain courierReward: it must still never
// exceed distanceMeters*rewardPerMeter, the same cap the nil/fallback path already enforced.
func TestSettleDrop_CapsEventSourcedRewardToDistance(t *testing.T) {
	st, ch, coord := newDropFixture()
	ch.dropResult = chain.DropResult{TxHash: "0xdroptx", CourierReward: big.NewInt(999_999)}

	sess := dropSession(plannedTestDistance)
	result, err := coord.Settle(context.Background(), sess, eip712.Approval{OrderID: big.NewInt(42)}, []byte{0x0a})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	want := big.NewInt(plannedTestDistance * 10) // distanceMeters * rewardPerMeter
	if result.CourierRewardWei != want.String() {
		t.Fatalf("expected reward capped at %s, got %s", want, result.CourierRewardWei)
	}
	if st.lastDrop == nil || st.lastDrop.CourierRewardWei != want.String() {
		t.Fatalf("expected the capped reward to reach the store commit, got %+v", st.lastDrop)
	}
}

// TestSettleDrop_FallbackRewardAlsoCapped covers the pre-existing fallback path (ConfirmDrop
// returns a nil CourierReward) to confirm it is still capped the same way.
func TestSettleDrop_FallbackRewardAlsoCapped(t *testing.T) {
	_, ch, coord := newDropFixture()
	ch.dropResult = chain.DropResult{TxHash: "0xdroptx", CourierReward: nil}

	sess := dropSession(plannedTestDistance)
	result, err := coord.Settle(context.Background(), sess, eip712.Approval{OrderID: big.NewInt(42)}, []byte{0x0a})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	want := big.NewInt(plannedTestDistance * 10)
	if result.CourierRewardWei != want.String() {
		t.Fatalf("expected fallback reward %s, got %s", want, result.CourierRewardWei)
	}
}

// TestSettleDrop_ChainFailureThenRetry covers a ConfirmDrop failure mid-settlement: the store
// commit must never be attempted, and a retry once the chain recovers must succeed.
func TestSettleDrop_ChainFailureThenRetry(t *testing.T) {
	st, ch, coord := newDropFixture()
	ch.confirmDropErr = errors.New("chain: rpc timeout")

	sess := dropSession(plannedTestDistance)
	_, err := coord.Settle(context.Background(), sess, eip712.Approval{OrderID: big.NewInt(42)}, []byte{0x0a})
	if err == nil {
		t.Fatalf("expected settle to fail while the chain is down")
	}
	if st.lastDrop != nil {
		t.Fatalf("expected no store commit while confirmDrop is failing, got %+v", st.lastDrop)
	}
	if st.shipment.Status != model.ShipmentInTransit {
		t.Fatalf("expected shipment to remain InTransit after a chain failure, got %s", st.shipment.Status)
	}

	ch.confirmDropErr = nil
	ch.dropResult = chain.DropResult{TxHash: "0xdroptx", CourierReward: big.NewInt(500)}
	result, err := coord.Settle(context.Background(), sess, eip712.Approval{OrderID: big.NewInt(42)}, []byte{0x0a})
	if err != nil {
		t.Fatalf("expected retry to succeed once the chain recovers: %v", err)
	}
	if result.DropTx != "0xdroptx" {
		t.Fatalf("expected the retry's tx hash, got %+v", result)
	}
	if ch.confirmDropCalls != 2 {
		t.Fatalf("expected 2 confirmDrop calls (failed attempt + successful retry), got %d", ch.confirmDropCalls)
	}
}

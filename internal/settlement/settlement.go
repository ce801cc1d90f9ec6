// Package settlement implements the Settlement Coordinator: the pickup and drop
// commit sequences, always calling the chain gateway before the relational commit so the
// database's terminal state never runs ahead of a confirmed chain state.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/accordsai/podx/internal/chain"
	"github.com/accordsai/podx/internal/eip712"
	"github.com/accordsai/podx/internal/geo"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/store"
)

// StateError signals that a shipment/order precondition failed before any chain call was made;
// the caller should surface this as SHIPMENT_STATE rather than CHAIN_FAILED.
type StateError struct{ Message string }

func (e *StateError) Error() string { return e.Message }

// Result carries whatever the caller needs to render a success response.
type Result struct {
	PickupTx         string
	DropTx           string
	CourierRewardWei string
}

// Store is the subset of *store.Store the settlement coordinator needs. Satisfied by
// *store.Store; narrowed to an interface so tests can substitute a fake.
type Store interface {
	GetShipment(ctx context.Context, id string) (model.Shipment, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	CompletePickupSettlement(ctx context.Context, p store.PickupSettlementParams) error
	CompleteDropSettlement(ctx context.Context, p store.DropSettlementParams) error
}

// Chain is the subset of *chain.Gateway the settlement coordinator needs. Satisfied by
// *chain.Gateway; narrowed to an interface so tests can substitute a fake.
type Chain interface {
	ConfirmPickup(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte) (string, error)
	ConfirmDrop(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte, lineItemsJSON, metadataURI string) (chain.DropResult, error)
	EscrowedBalance(ctx context.Context, orderID *big.Int) (*big.Int, error)
	Order(ctx context.Context, orderID *big.Int) (chain.OrderOnChain, error)
}

// Coordinator holds the store and chain gateway handles the settlement steps need.
type Coordinator struct {
	store          Store
	chain          Chain
	rewardPerMeter int64
}

func New(st Store, gw Chain, rewardPerMeter int64) *Coordinator {
	return &Coordinator{store: st, chain: gw, rewardPerMeter: rewardPerMeter}
}

// Settle dispatches to the pickup or drop commit sequence by session kind.
func (c *Coordinator) Settle(ctx context.Context, sess model.SigningSession, approval eip712.Approval, counterpartySig []byte) (Result, error) {
	switch sess.Kind {
	case model.SessionPickup:
		return c.settlePickup(ctx, sess, approval, counterpartySig)
	case model.SessionDrop:
		return c.settleDrop(ctx, sess, approval, counterpartySig)
	default:
		return Result{}, fmt.Errorf("settlement: unrecognised session kind %q", sess.Kind)
	}
}

func (c *Coordinator) settlePickup(ctx context.Context, sess model.SigningSession, approval eip712.Approval, counterpartySig []byte) (Result, error) {
	sh, err := c.store.GetShipment(ctx, sess.ShipmentID)
	if err != nil {
		return Result{}, err
	}
	if sh.Status == model.ShipmentInTransit || sh.Status == model.ShipmentDelivered {
		// Already confirmed on a previous attempt whose DB commit landed; idempotent no-op.
		tx := ""
		if sh.Metadata.Onchain != nil {
			tx = sh.Metadata.Onchain.PickupTx
		}
		return Result{PickupTx: tx}, nil
	}
	if sh.Status != model.ShipmentCreated {
		return Result{}, &StateError{Message: "shipment is not in Created state"}
	}

	pickupTx, err := c.chain.ConfirmPickup(ctx, approval, sess.CourierSignature, counterpartySig)
	if err != nil {
		return Result{}, fmt.Errorf("settlement: confirmPickup: %w", err)
	}

	err = c.store.CompletePickupSettlement(ctx, store.PickupSettlementParams{
		Session:      sess,
		PickupTxHash: pickupTx,
		ClaimedTs:    approval.ClaimedTs,
		Signer:       sess.Supplier,
	})
	if err != nil {
		return Result{}, fmt.Errorf("settlement: on-chain confirmPickup succeeded (tx=%s) but the database commit failed, recovery sweep will reconcile: %w", pickupTx, err)
	}
	return Result{PickupTx: pickupTx}, nil
}

func (c *Coordinator) settleDrop(ctx context.Context, sess model.SigningSession, approval eip712.Approval, counterpartySig []byte) (Result, error) {
	sh, err := c.store.GetShipment(ctx, sess.ShipmentID)
	if err != nil {
		return Result{}, err
	}
	if sh.Status == model.ShipmentDelivered {
		dropTx, reward := "", ""
		if sh.Metadata.Onchain != nil {
			dropTx = sh.Metadata.Onchain.DropTx
			reward = sh.Metadata.Onchain.CourierRewardWei
		}
		return Result{DropTx: dropTx, CourierRewardWei: reward}, nil
	}
	if sh.Status != model.ShipmentInTransit {
		return Result{}, &StateError{Message: "shipment is not in transit"}
	}

	planned := geo.RoundMeters(geo.DistanceMeters(sh.PickupLat, sh.PickupLon, sh.DropLat, sh.DropLon))
	delta := sess.Payload.DistanceMeters - planned
	if delta < 0 {
		delta = -delta
	}
	if delta > 5 {
		return Result{}, &StateError{Message: fmt.Sprintf("distance %d deviates from planned %d by more than 5m", sess.Payload.DistanceMeters, planned)}
	}

	ord, err := c.store.GetOrder(ctx, sh.OrderID)
	if err != nil {
		return Result{}, err
	}
	lineItemsJSON, err := json.Marshal(ord.Metadata.Items)
	if err != nil {
		return Result{}, err
	}

	dropResult, err := c.chain.ConfirmDrop(ctx, approval, sess.CourierSignature, counterpartySig, string(lineItemsJSON), ord.Metadata.DropMetadataURI)
	if err != nil {
		return Result{}, fmt.Errorf("settlement: confirmDrop: %w", err)
	}

	reward := dropResult.CourierReward
	if reward == nil {
		reward = big.NewInt(sess.Payload.DistanceMeters * c.rewardPerMeter)
	}
	// courierReward must never exceed distanceMeters*rewardPerMeter, whether it came from the
	// event log or the fallback computation above.
	if distanceCap := big.NewInt(sess.Payload.DistanceMeters * c.rewardPerMeter); reward.Cmp(distanceCap) > 0 {
		reward = distanceCap
	}
	if rewardCap, cerr := c.rewardCap(ctx, approval.OrderID); cerr == nil && reward.Cmp(rewardCap) > 0 {
		reward = rewardCap
	}

	err = c.store.CompleteDropSettlement(ctx, store.DropSettlementParams{
		Session:          sess,
		DropTxHash:       dropResult.TxHash,
		ClaimedTs:        approval.ClaimedTs,
		DistanceMeters:   sess.Payload.DistanceMeters,
		Signer:           sess.Supplier,
		CourierRewardWei: reward.String(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("settlement: on-chain confirmDrop succeeded (tx=%s) but the database commit failed, recovery sweep will reconcile: %w", dropResult.TxHash, err)
	}
	return Result{DropTx: dropResult.TxHash, CourierRewardWei: reward.String()}, nil
}

// rewardCap computes escrowedBalance-supplierAmount as the ceiling on the courier reward. A non-nil error
// leaves the caller free to skip capping rather than fail settlement over a read-only view call.
func (c *Coordinator) rewardCap(ctx context.Context, orderID *big.Int) (*big.Int, error) {
	escrowed, err := c.chain.EscrowedBalance(ctx, orderID)
	if err != nil {
		return nil, err
	}
	onchainOrder, err := c.chain.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	capAmt := new(big.Int).Sub(escrowed, onchainOrder.Amount)
	if capAmt.Sign() < 0 {
		capAmt = big.NewInt(0)
	}
	return capAmt, nil
}

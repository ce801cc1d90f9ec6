// Package recovery implements a background reconciliation pass: on an interval and once at
// process start, it looks for signing sessions whose on-chain confirmation may have already
// succeeded without the matching database commit landing, and reconciles them. A session whose
// countersign proof is already recorded is skipped, so repeated passes do not commit twice.
package recovery

import (
	"context"
	"math/big"
	"time"

	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/applog"
	"github.com/accordsai/podx/internal/chain"
	"github.com/accordsai/podx/internal/cryptox"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/store"
	"go.uber.org/zap"
)

// DefaultInterval is the default reconciliation sweep interval.
const DefaultInterval = 2 * time.Minute

// Sweeper periodically compares non-terminal signing sessions against on-chain events and
// reconciles the ones a database commit failure left stuck after a successful chain call.
type Sweeper struct {
	store    *store.Store
	chain    *chain.Gateway
	interval time.Duration
}

func New(st *store.Store, gw *chain.Gateway, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: st, chain: gw, interval: interval}
}

// Run performs an immediate sweep, then repeats on Sweeper's interval until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.runAndLog(ctx)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.runAndLog(ctx)
		}
	}
}

func (sw *Sweeper) runAndLog(ctx context.Context) {
	n, err := sw.RunOnce(ctx)
	if err != nil {
		applog.L().Error("recovery sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		applog.L().Info("recovery sweep reconciled sessions", zap.Int("count", n))
	}
}

// RunOnce checks every non-terminal pickup and drop session for a missing proof, queries the
// chain gateway for the ones that are missing one, and reconciles any it finds already confirmed
// on chain. It returns the number of sessions reconciled.
func (sw *Sweeper) RunOnce(ctx context.Context) (int, error) {
	reconciled := 0
	for _, kind := range []model.SessionKind{model.SessionPickup, model.SessionDrop} {
		sessions, err := sw.store.ListNonTerminalSessions(ctx, kind)
		if err != nil {
			return reconciled, err
		}
		for _, sess := range sessions {
			ok, err := sw.reconcileOne(ctx, sess)
			if err != nil {
				applog.L().Warn("recovery: failed to reconcile session",
					zap.String("sessionUid", sess.SessionUID), zap.Error(err))
				continue
			}
			if ok {
				reconciled++
			}
		}
	}
	return reconciled, nil
}

func (sw *Sweeper) reconcileOne(ctx context.Context, sess model.SigningSession) (bool, error) {
	sh, err := sw.store.GetShipment(ctx, sess.ShipmentID)
	if err != nil {
		return false, err
	}

	switch sess.Kind {
	case model.SessionPickup:
		return sw.reconcilePickup(ctx, sess, sh)
	case model.SessionDrop:
		return sw.reconcileDrop(ctx, sess, sh)
	default:
		return false, nil
	}
}

func (sw *Sweeper) reconcilePickup(ctx context.Context, sess model.SigningSession, sh model.Shipment) (bool, error) {
	has, err := sw.store.HasProofOfKind(ctx, sh.ShipmentNo, model.ProofPickupCountersign)
	if err != nil {
		return false, err
	}
	if has {
		// The database already caught up; the session's status will settle on its own.
		return false, nil
	}

	shipmentID := cryptox.Keccak256UTF8(sh.ID)
	txHash, found, err := sw.chain.FindPickupApproved(ctx, shipmentID, fromGenesis())
	if err != nil || !found {
		return false, err
	}

	err = sw.store.CompletePickupSettlement(ctx, store.PickupSettlementParams{
		Session:      sess,
		PickupTxHash: txHash,
		ClaimedTs:    sess.Payload.ClaimedTs,
		Signer:       sess.Supplier,
	})
	if err != nil {
		return false, err
	}
	appmetrics.SettlementReconciledTotal.WithLabelValues(string(model.SessionPickup)).Inc()
	return true, nil
}

func (sw *Sweeper) reconcileDrop(ctx context.Context, sess model.SigningSession, sh model.Shipment) (bool, error) {
	has, err := sw.store.HasProofOfKind(ctx, sh.ShipmentNo, model.ProofDropCountersign)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	shipmentID := cryptox.Keccak256UTF8(sh.ID)
	txHash, reward, found, err := sw.chain.FindDropApproved(ctx, shipmentID, fromGenesis())
	if err != nil || !found {
		return false, err
	}

	rewardWei := ""
	if reward != nil {
		rewardWei = reward.String()
	} else {
		rewardWei = big.NewInt(sess.Payload.DistanceMeters * sw.chain.RewardPerMeter()).String()
	}

	err = sw.store.CompleteDropSettlement(ctx, store.DropSettlementParams{
		Session:          sess,
		DropTxHash:       txHash,
		ClaimedTs:        sess.Payload.ClaimedTs,
		DistanceMeters:   sess.Payload.DistanceMeters,
		Signer:           sess.Supplier,
		CourierRewardWei: rewardWei,
	})
	if err != nil {
		return false, err
	}
	appmetrics.SettlementReconciledTotal.WithLabelValues(string(model.SessionDrop)).Inc()
	return true, nil
}

// fromGenesis scans the whole shipment registry history. A production deployment would persist
// the last-scanned block per shipment registry deployment; the sessions this sweep reconciles are
// always recent (bounded by the signing session TTL), so a full scan stays cheap in practice.
func fromGenesis() *big.Int {
	return big.NewInt(0)
}

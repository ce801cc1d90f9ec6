package store

import (
	"context"
	"encoding/json"

	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
)

// PickupSettlementParams carries everything CompletePickupSettlement needs to commit the
// relational side of a pickup settlement, after the on-chain confirmPickup call has already
// succeeded.
type PickupSettlementParams struct {
	Session      model.SigningSession
	PickupTxHash string
	ClaimedTs    int64
	Signer       string // the counterparty who countersigned
}

// CompletePickupSettlement performs, in one transaction: insert the pickup-countersign Proof,
// advance Shipment to InTransit, advance Order to Shipped, mark the session COMPLETED, and
// consume the magic link. Called only after the on-chain call has already succeeded, so the
// database's terminal state never runs ahead of a confirmed chain state.
func (s *Store) CompletePickupSettlement(ctx context.Context, p PickupSettlementParams) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sh, err := scanShipment(tx.QueryRow(ctx, shipmentSelect+`WHERE id=$1 FOR UPDATE`, p.Session.ShipmentID))
	if err != nil {
		return err
	}
	ord, err := scanOrder(tx.QueryRow(ctx, `
SELECT id,buyer,supplier,total_amount,currency,chain_order_id,status,metadata,
       approved_at,funded_at,completed_at,cancelled_at,created_at,updated_at
FROM orders WHERE id=$1 FOR UPDATE`, sh.OrderID))
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO proofs(shipment_no,kind,signer,claimed_ts,within_radius,created_at)
VALUES($1,$2,$3,$4,true,now())
`, sh.ShipmentNo, model.ProofPickupCountersign, p.Signer, p.ClaimedTs)
	if err != nil {
		return err
	}

	courier := sh.AssignedCourier
	if courier == "" {
		courier = p.Session.Courier
	}
	if sh.Metadata.Onchain == nil {
		sh.Metadata.Onchain = &model.OnchainMetadata{}
	}
	sh.Metadata.Onchain.PickupTx = p.PickupTxHash
	shMeta, err := json.Marshal(sh.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE shipments SET status=$1, picked_up_at=now(), assigned_courier=$2, metadata=$3::jsonb, updated_at=now()
WHERE id=$4
`, model.ShipmentInTransit, courier, string(shMeta), sh.ID)
	if err != nil {
		return err
	}

	if ord.Metadata.Onchain == nil {
		ord.Metadata.Onchain = &model.OnchainMetadata{}
	}
	ord.Metadata.Onchain.PickupTx = p.PickupTxHash
	ordMeta, err := json.Marshal(ord.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET status=$1, metadata=$2::jsonb, updated_at=now() WHERE id=$3`,
		model.OrderShipped, string(ordMeta), ord.ID)
	if err != nil {
		return err
	}

	if err := completeSessionTx(ctx, tx, p.Session.SessionUID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DropSettlementParams carries everything CompleteDropSettlement needs after confirmDrop has
// already succeeded on-chain.
type DropSettlementParams struct {
	Session          model.SigningSession
	DropTxHash       string
	ClaimedTs        int64
	DistanceMeters   int64
	Signer           string
	CourierRewardWei string
}

// CompleteDropSettlement performs, in one transaction: insert the drop-countersign Proof,
// advance Shipment to Delivered, advance Order to Delivered, replenish buyer inventory per line
// item, transition the Payment row to Released, mark the session COMPLETED, and consume the
// magic link. Inventory replenishment runs inside this same transaction so a partial commit
// can never leave stock un-replenished.
func (s *Store) CompleteDropSettlement(ctx context.Context, p DropSettlementParams) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sh, err := scanShipment(tx.QueryRow(ctx, shipmentSelect+`WHERE id=$1 FOR UPDATE`, p.Session.ShipmentID))
	if err != nil {
		return err
	}
	ord, err := scanOrder(tx.QueryRow(ctx, `
SELECT id,buyer,supplier,total_amount,currency,chain_order_id,status,metadata,
       approved_at,funded_at,completed_at,cancelled_at,created_at,updated_at
FROM orders WHERE id=$1 FOR UPDATE`, sh.OrderID))
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO proofs(shipment_no,kind,signer,claimed_ts,distance_meters,within_radius,created_at)
VALUES($1,$2,$3,$4,$5,true,now())
`, sh.ShipmentNo, model.ProofDropCountersign, p.Signer, p.ClaimedTs, p.DistanceMeters)
	if err != nil {
		return err
	}

	if sh.Metadata.Onchain == nil {
		sh.Metadata.Onchain = &model.OnchainMetadata{}
	}
	sh.Metadata.Onchain.DropTx = p.DropTxHash
	sh.Metadata.Onchain.CourierRewardWei = p.CourierRewardWei
	shMeta, err := json.Marshal(sh.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE shipments SET status=$1, delivered_at=now(), metadata=$2::jsonb, updated_at=now() WHERE id=$3`,
		model.ShipmentDelivered, string(shMeta), sh.ID)
	if err != nil {
		return err
	}

	if ord.Metadata.Escrow == nil {
		ord.Metadata.Escrow = &model.EscrowMetadata{}
	}
	ord.Metadata.Escrow.ReleaseTx = p.DropTxHash
	ordMeta, err := json.Marshal(ord.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET status=$1, completed_at=now(), metadata=$2::jsonb, updated_at=now() WHERE id=$3`,
		model.OrderDelivered, string(ordMeta), ord.ID)
	if err != nil {
		return err
	}

	for _, item := range ord.Metadata.Items {
		if err := replenishTx(ctx, tx, ord.Buyer, item.SkuID, item.Qty); err != nil {
			return err
		}
		appmetrics.ReplenishTriggeredTotal.Inc()
	}

	_, err = tx.Exec(ctx, `
UPDATE payments SET status=$1, release_tx=$2, updated_at=now() WHERE order_id=$3
`, model.PaymentReleased, p.DropTxHash, ord.ID)
	if err != nil {
		return err
	}

	if err := completeSessionTx(ctx, tx, p.Session.SessionUID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func completeSessionTx(ctx context.Context, tx pgx.Tx, sessionUID string) error {
	_, err := tx.Exec(ctx, `UPDATE signing_sessions SET status=$1, updated_at=now() WHERE session_uid=$2`,
		model.SessionCompleted, sessionUID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE magic_links SET used_at=now() WHERE session_id=$1 AND used_at IS NULL
`, sessionUID)
	return err
}

func replenishTx(ctx context.Context, tx pgx.Tx, owner, skuID string, qty int64) error {
	norm := normalizeSkuID(skuID)
	tag, err := tx.Exec(ctx, `
UPDATE products SET target_stock = target_stock + $1, active = true, version = version + 1, updated_at = now()
WHERE owner=$2 AND sku_id_normalized=$3
`, qty, owner, norm)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `
INSERT INTO products(owner,sku_id,sku_id_normalized,name,unit,min_threshold,target_stock,active,version,created_at,updated_at)
VALUES($1,$2,$3,$2,'unit',0,$4,true,1,now(),now())
ON CONFLICT (owner,sku_id_normalized) DO UPDATE SET
  target_stock = products.target_stock + $4, active = true, version = products.version + 1, updated_at = now()
`, owner, skuID, norm, qty)
	return err
}

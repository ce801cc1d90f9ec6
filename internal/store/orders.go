package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateOrder(ctx context.Context, o model.Order) error {
	metaJSON, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO orders(id,buyer,supplier,total_amount,currency,chain_order_id,status,metadata,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb,now(),now())
`, o.ID, o.Buyer, o.Supplier, o.TotalAmount.String(), o.Currency, o.ChainOrderID, o.Status, string(metaJSON))
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return scanOrder(s.DB.QueryRow(ctx, `
SELECT id,buyer,supplier,total_amount,currency,chain_order_id,status,metadata,
       approved_at,funded_at,completed_at,cancelled_at,created_at,updated_at
FROM orders WHERE id=$1
`, id))
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var amount string
	var metaJSON []byte
	err := row.Scan(&o.ID, &o.Buyer, &o.Supplier, &amount, &o.Currency, &o.ChainOrderID, &o.Status, &metaJSON,
		&o.ApprovedAt, &o.FundedAt, &o.CompletedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}
	amt, dErr := decimalFromString(amount)
	if dErr != nil {
		return model.Order{}, dErr
	}
	o.TotalAmount = amt
	if err := json.Unmarshal(metaJSON, &o.Metadata); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// UpdateOrderStatus performs the administrative status transition exposed at
// POST /orders/{orderId}/status: sets status and merges metadataPatch into the stored metadata's
// Other bucket without disturbing named fields already present.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, metadataPatch map[string]any) error {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	order.Status = status
	if order.Metadata.Other == nil {
		order.Metadata.Other = make(map[string]any)
	}
	for k, v := range metadataPatch {
		order.Metadata.Other[k] = v
	}
	metaJSON, err := json.Marshal(order.Metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `UPDATE orders SET status=$1, metadata=$2::jsonb, updated_at=now() WHERE id=$3`,
		status, string(metaJSON), id)
	return err
}

func (s *Store) MarkOrderFunded(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `UPDATE orders SET status=$1, funded_at=now(), updated_at=now() WHERE id=$2`,
		model.OrderFunded, id)
	return err
}

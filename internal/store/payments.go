package store

import (
	"context"
	"errors"

	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
)

// UpsertPayment enforces "at most one row per (orderId, payer, payee)".
func (s *Store) UpsertPayment(ctx context.Context, p model.Payment) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO payments(id,order_id,payer,payee,amount,currency,status,escrow_tx,release_tx,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
ON CONFLICT (order_id,payer,payee) DO UPDATE SET
  amount=EXCLUDED.amount, currency=EXCLUDED.currency, status=EXCLUDED.status,
  escrow_tx=EXCLUDED.escrow_tx, release_tx=EXCLUDED.release_tx, updated_at=now()
`, p.ID, p.OrderID, p.Payer, p.Payee, p.Amount.String(), p.Currency, p.Status, p.EscrowTx, p.ReleaseTx)
	return err
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (model.Payment, error) {
	var p model.Payment
	var amount string
	err := s.DB.QueryRow(ctx, `
SELECT id,order_id,payer,payee,amount,currency,status,escrow_tx,release_tx,created_at,updated_at
FROM payments WHERE order_id=$1
`, orderID).Scan(&p.ID, &p.OrderID, &p.Payer, &p.Payee, &amount, &p.Currency, &p.Status, &p.EscrowTx, &p.ReleaseTx, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Payment{}, ErrNotFound
		}
		return model.Payment{}, err
	}
	amt, dErr := decimalFromString(amount)
	if dErr != nil {
		return model.Payment{}, dErr
	}
	p.Amount = amt
	return p, nil
}

func (s *Store) MarkPaymentEscrowed(ctx context.Context, orderID, escrowTx string) error {
	_, err := s.DB.Exec(ctx, `UPDATE payments SET status=$1, escrow_tx=$2, updated_at=now() WHERE order_id=$3`,
		model.PaymentEscrowed, escrowTx, orderID)
	return err
}

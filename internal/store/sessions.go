package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSessionConflict is returned when a non-terminal session already exists for
// (shipmentId, kind), enforced by a partial unique index.
var ErrSessionConflict = errors.New("store: a non-terminal session already exists for this shipment and kind")

// CreateSessionWithMagicLink atomically inserts a SigningSession and its MagicLink in a
// single transaction.
func (s *Store) CreateSessionWithMagicLink(ctx context.Context, sess model.SigningSession, link model.MagicLink) error {
	payloadJSON, err := json.Marshal(sess.Payload)
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO signing_sessions(session_uid,shipment_id,kind,courier,supplier,chain_order_id,deadline,
  status,courier_nonce,supplier_nonce,context_hash,courier_signature,counterparty_signature,payload,
  created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,now(),now())
`, sess.SessionUID, sess.ShipmentID, sess.Kind, sess.Courier, sess.Supplier, sess.ChainOrderID, sess.Deadline,
		sess.Status, sess.CourierNonce, sess.SupplierNonce, sess.ContextHash, sess.CourierSignature, sess.CounterpartySignature, string(payloadJSON))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSessionConflict
		}
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO magic_links(token_hash,role,jti,expires_at,used_at,session_id)
VALUES($1,$2,$3,$4,$5,$6)
`, link.TokenHash, link.Role, link.JTI, link.ExpiresAt, link.UsedAt, link.SessionID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetSessionByUID(ctx context.Context, uid string) (model.SigningSession, error) {
	return scanSession(s.DB.QueryRow(ctx, sessionSelect+`WHERE session_uid=$1`, uid))
}

// ListNonTerminalSessions returns sessions of kind that are still PENDING_SUPPLIER/PENDING_BUYER,
// used by the recovery sweep to pick its reconciliation candidates.
func (s *Store) ListNonTerminalSessions(ctx context.Context, kind model.SessionKind) ([]model.SigningSession, error) {
	rows, err := s.DB.Query(ctx, sessionSelect+`WHERE kind=$1 AND status IN ($2,$3)`,
		kind, model.SessionPendingSupplier, model.SessionPendingBuyer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SigningSession
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ExpireStaleSessions flips sessions past their deadline to EXPIRED and invalidates their
// magic links. Returns the number of sessions expired, broken down by kind so callers can
// label their metrics correctly.
func (s *Store) ExpireStaleSessions(ctx context.Context) (map[model.SessionKind]int64, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
UPDATE signing_sessions SET status=$1, updated_at=now()
WHERE status IN ($2,$3) AND deadline < now()
RETURNING kind
`, model.SessionExpired, model.SessionPendingSupplier, model.SessionPendingBuyer)
	if err != nil {
		return nil, err
	}
	byKind := make(map[model.SessionKind]int64)
	for rows.Next() {
		var kind model.SessionKind
		if err := rows.Scan(&kind); err != nil {
			rows.Close()
			return nil, err
		}
		byKind[kind]++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
UPDATE magic_links SET used_at=now()
WHERE used_at IS NULL AND session_id IN (
  SELECT session_uid FROM signing_sessions WHERE status=$1
)
`, model.SessionExpired)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return byKind, nil
}

const sessionSelect = `
SELECT session_uid,shipment_id,kind,courier,supplier,chain_order_id,deadline,status,
       courier_nonce,supplier_nonce,context_hash,courier_signature,counterparty_signature,payload,
       created_at,updated_at
FROM signing_sessions
`

func scanSession(row pgx.Row) (model.SigningSession, error) {
	var sess model.SigningSession
	var payloadJSON []byte
	err := row.Scan(&sess.SessionUID, &sess.ShipmentID, &sess.Kind, &sess.Courier, &sess.Supplier, &sess.ChainOrderID,
		&sess.Deadline, &sess.Status, &sess.CourierNonce, &sess.SupplierNonce, &sess.ContextHash,
		&sess.CourierSignature, &sess.CounterpartySignature, &payloadJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SigningSession{}, ErrNotFound
		}
		return model.SigningSession{}, err
	}
	if err := json.Unmarshal(payloadJSON, &sess.Payload); err != nil {
		return model.SigningSession{}, err
	}
	return sess, nil
}

func scanSessionRow(rows pgx.Rows) (model.SigningSession, error) {
	var sess model.SigningSession
	var payloadJSON []byte
	err := rows.Scan(&sess.SessionUID, &sess.ShipmentID, &sess.Kind, &sess.Courier, &sess.Supplier, &sess.ChainOrderID,
		&sess.Deadline, &sess.Status, &sess.CourierNonce, &sess.SupplierNonce, &sess.ContextHash,
		&sess.CourierSignature, &sess.CounterpartySignature, &payloadJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return model.SigningSession{}, err
	}
	if err := json.Unmarshal(payloadJSON, &sess.Payload); err != nil {
		return model.SigningSession{}, err
	}
	return sess, nil
}

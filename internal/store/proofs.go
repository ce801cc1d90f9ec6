package store

import (
	"context"

	"github.com/accordsai/podx/internal/model"
)

func (s *Store) ListProofsByShipment(ctx context.Context, shipmentNo int64) ([]model.Proof, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id,shipment_no,kind,signer,claimed_ts,photo_hash,photo_cid,distance_meters,within_radius,created_at
FROM proofs WHERE shipment_no=$1 ORDER BY created_at ASC
`, shipmentNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Proof
	for rows.Next() {
		var p model.Proof
		if err := rows.Scan(&p.ID, &p.ShipmentNo, &p.Kind, &p.Signer, &p.ClaimedTs, &p.PhotoHash, &p.PhotoCID,
			&p.DistanceMeters, &p.WithinRadius, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HasProofOfKind reports whether a proof of the given kind already exists for shipmentNo, used
// by the recovery sweep to detect a chain call that succeeded without its DB commit landing.
func (s *Store) HasProofOfKind(ctx context.Context, shipmentNo int64, kind model.ProofKind) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM proofs WHERE shipment_no=$1 AND kind=$2)`, shipmentNo, kind).Scan(&exists)
	return exists, err
}

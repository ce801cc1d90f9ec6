package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateShipment(ctx context.Context, sh model.Shipment) error {
	metaJSON, err := json.Marshal(sh.Metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO shipments(id,order_id,shipment_no,supplier,buyer,assigned_courier,
  pickup_lat,pickup_lon,drop_lat,drop_lon,due_by,status,metadata,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb,now(),now())
`, sh.ID, sh.OrderID, sh.ShipmentNo, sh.Supplier, sh.Buyer, sh.AssignedCourier,
		sh.PickupLat, sh.PickupLon, sh.DropLat, sh.DropLon, sh.DueBy, sh.Status, string(metaJSON))
	return err
}

func (s *Store) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	return scanShipment(s.DB.QueryRow(ctx, shipmentSelect+`WHERE id=$1`, id))
}

// ListShipmentsByOrder is the indexed reverse lookup used in place of a back-pointer from
// Order to Shipment.
func (s *Store) ListShipmentsByOrder(ctx context.Context, orderID string) ([]model.Shipment, error) {
	rows, err := s.DB.Query(ctx, shipmentSelect+`WHERE order_id=$1 ORDER BY shipment_no ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Shipment
	for rows.Next() {
		sh, err := scanShipmentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) UpdateShipmentCourier(ctx context.Context, id, courier string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE shipments SET assigned_courier=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		courier, id, model.ShipmentCreated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("store: shipment not found or courier can no longer be reassigned")
	}
	return nil
}

const shipmentSelect = `
SELECT id,order_id,shipment_no,supplier,buyer,assigned_courier,
       pickup_lat,pickup_lon,drop_lat,drop_lon,due_by,status,metadata,
       picked_up_at,delivered_at,cancelled_at,created_at,updated_at
FROM shipments
`

func scanShipment(row pgx.Row) (model.Shipment, error) {
	var sh model.Shipment
	var metaJSON []byte
	err := row.Scan(&sh.ID, &sh.OrderID, &sh.ShipmentNo, &sh.Supplier, &sh.Buyer, &sh.AssignedCourier,
		&sh.PickupLat, &sh.PickupLon, &sh.DropLat, &sh.DropLon, &sh.DueBy, &sh.Status, &metaJSON,
		&sh.PickedUpAt, &sh.DeliveredAt, &sh.CancelledAt, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Shipment{}, ErrNotFound
		}
		return model.Shipment{}, err
	}
	if err := json.Unmarshal(metaJSON, &sh.Metadata); err != nil {
		return model.Shipment{}, err
	}
	return sh, nil
}

func scanShipmentRow(rows pgx.Rows) (model.Shipment, error) {
	var sh model.Shipment
	var metaJSON []byte
	err := rows.Scan(&sh.ID, &sh.OrderID, &sh.ShipmentNo, &sh.Supplier, &sh.Buyer, &sh.AssignedCourier,
		&sh.PickupLat, &sh.PickupLon, &sh.DropLat, &sh.DropLon, &sh.DueBy, &sh.Status, &metaJSON,
		&sh.PickedUpAt, &sh.DeliveredAt, &sh.CancelledAt, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return model.Shipment{}, err
	}
	if err := json.Unmarshal(metaJSON, &sh.Metadata); err != nil {
		return model.Shipment{}, err
	}
	return sh, nil
}

package store

import (
	"context"
	"strings"

	"github.com/accordsai/podx/internal/model"
)

// normalizeSkuID applies a lower(replace(replace(sku_id,'-',''),' ','')) comparison, used so
// "Widget-1" and "widget 1" resolve to the same product row.
func normalizeSkuID(skuID string) string {
	s := strings.ToLower(skuID)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// UpsertReplenishment increments a buyer's product targetStock by qty, creating the product
// lazily with sensible defaults if absent. Matching is by
// (owner, normalized skuId) rather than raw skuId equality.
func (s *Store) UpsertReplenishment(ctx context.Context, owner, skuID string, qty int64) error {
	norm := normalizeSkuID(skuID)
	tag, err := s.DB.Exec(ctx, `
UPDATE products SET target_stock = target_stock + $1, active = true, version = version + 1, updated_at = now()
WHERE owner=$2 AND sku_id_normalized=$3
`, qty, owner, norm)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO products(owner,sku_id,sku_id_normalized,name,unit,min_threshold,target_stock,active,version,created_at,updated_at)
VALUES($1,$2,$3,$2,'unit',0,$4,true,1,now(),now())
ON CONFLICT (owner,sku_id_normalized) DO UPDATE SET
  target_stock = products.target_stock + $4, active = true, version = products.version + 1, updated_at = now()
`, owner, skuID, norm, qty)
	return err
}

func (s *Store) GetProduct(ctx context.Context, owner, skuID string) (model.Product, error) {
	var p model.Product
	err := s.DB.QueryRow(ctx, `
SELECT owner,sku_id,name,unit,min_threshold,target_stock,active,version,created_at,updated_at
FROM products WHERE owner=$1 AND sku_id_normalized=$2
`, owner, normalizeSkuID(skuID)).Scan(&p.Owner, &p.SkuID, &p.Name, &p.Unit, &p.MinThreshold, &p.TargetStock, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

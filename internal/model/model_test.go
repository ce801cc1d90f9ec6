package model

import (
	"encoding/json"
	"testing"
)

func TestMetadata_RoundTripsNamedAndOtherFields(t *testing.T) {
	m := Metadata{
		Pickup:       map[string]any{"note": "left at dock"},
		ChainOrderID: "1700000000000",
		Items:        []LineItem{{SkuID: "sku-1", Qty: 3}},
		Other:        map[string]any{"customField": "keepme"},
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Metadata
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ChainOrderID != m.ChainOrderID {
		t.Fatalf("expected chainOrderId to round-trip, got %q", got.ChainOrderID)
	}
	if len(got.Items) != 1 || got.Items[0].SkuID != "sku-1" || got.Items[0].Qty != 3 {
		t.Fatalf("expected items to round-trip, got %+v", got.Items)
	}
	if got.Other["customField"] != "keepme" {
		t.Fatalf("expected unrecognised field to survive in Other, got %+v", got.Other)
	}
	if _, leaked := got.Other["chainOrderId"]; leaked {
		t.Fatalf("expected chainOrderId to be consumed as a named field, not leaked into Other")
	}
}

func TestMetadata_EmptyRoundTrips(t *testing.T) {
	var m Metadata
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Metadata
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Other) != 0 {
		t.Fatalf("expected no Other keys for empty metadata, got %+v", got.Other)
	}
}

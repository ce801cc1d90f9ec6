// Package model defines the PODx relational entities shared by the store, session,
// settlement, and HTTP layers.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderApproved      OrderStatus = "Approved"
	OrderFunded        OrderStatus = "Funded"
	OrderInFulfillment OrderStatus = "InFulfillment"
	OrderShipped       OrderStatus = "Shipped"
	OrderDelivered     OrderStatus = "Delivered"
	OrderDisputed      OrderStatus = "Disputed"
	OrderResolved      OrderStatus = "Resolved"
	OrderCancelled     OrderStatus = "Cancelled"
)

type ShipmentStatus string

const (
	ShipmentCreated   ShipmentStatus = "Created"
	ShipmentInTransit ShipmentStatus = "InTransit"
	ShipmentDelivered ShipmentStatus = "Delivered"
	ShipmentCancelled ShipmentStatus = "Cancelled"
)

type SessionKind string

const (
	SessionPickup SessionKind = "pickup"
	SessionDrop   SessionKind = "drop"
)

type SessionStatus string

const (
	SessionPendingSupplier SessionStatus = "PENDING_SUPPLIER"
	SessionPendingBuyer    SessionStatus = "PENDING_BUYER"
	SessionCompleted       SessionStatus = "COMPLETED"
	SessionExpired         SessionStatus = "EXPIRED"
	SessionCancelled       SessionStatus = "CANCELLED"
)

type MagicLinkRole string

const (
	RoleSupplier MagicLinkRole = "supplier"
	RoleBuyer    MagicLinkRole = "buyer"
)

type ProofKind string

const (
	ProofPickup            ProofKind = "pickup"
	ProofDrop              ProofKind = "drop"
	ProofPickupCountersign ProofKind = "pickup-countersign"
	ProofDropCountersign   ProofKind = "drop-countersign"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentEscrowed PaymentStatus = "Escrowed"
	PaymentReleased PaymentStatus = "Released"
	PaymentRefunded PaymentStatus = "Refunded"
)

// LineItem is one entry of an order's items metadata blob.
type LineItem struct {
	SkuID string `json:"skuId"`
	Qty   int64  `json:"qty"`
}

// EscrowMetadata tracks funding/release transaction references.
type EscrowMetadata struct {
	FundTx     string `json:"fundTx,omitempty"`
	ApprovalTx string `json:"approvalTx,omitempty"`
	ReleaseTx  string `json:"releaseTx,omitempty"`
}

// OnchainMetadata tracks confirmed on-chain transaction hashes for a shipment or order.
type OnchainMetadata struct {
	PickupTx         string `json:"pickupTx,omitempty"`
	DropTx           string `json:"dropTx,omitempty"`
	RegisterTx       string `json:"registerTx,omitempty"`
	CourierRewardWei string `json:"courierRewardWei,omitempty"`
}

// Metadata is the tagged-variant replacement for the source's free-form metadataRaw JSON blob.
// Recognised keys get typed fields; anything else survives round-trips in Other.
type Metadata struct {
	Pickup          map[string]any  `json:"pickup,omitempty"`
	Drop            map[string]any  `json:"drop,omitempty"`
	Onchain         *OnchainMetadata `json:"onchain,omitempty"`
	Escrow          *EscrowMetadata `json:"escrow,omitempty"`
	Items           []LineItem      `json:"items,omitempty"`
	ChainOrderID    string          `json:"chainOrderId,omitempty"`
	DropMetadataURI string          `json:"dropMetadataUri,omitempty"`
	Other           map[string]any  `json:"-"`
}

// namedMetadataKeys lists the tagged-variant fields that MarshalJSON/UnmarshalJSON treat
// specially; anything else round-trips through Other.
var namedMetadataKeys = map[string]bool{
	"pickup": true, "drop": true, "onchain": true, "escrow": true,
	"items": true, "chainOrderId": true, "dropMetadataUri": true,
}

// MarshalJSON flattens the named fields alongside Other into a single object, so a stored
// metadata blob reads as a flat JSON object rather than nesting an "other" key.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Other)+6)
	for k, v := range m.Other {
		out[k] = v
	}
	if m.Pickup != nil {
		out["pickup"] = m.Pickup
	}
	if m.Drop != nil {
		out["drop"] = m.Drop
	}
	if m.Onchain != nil {
		out["onchain"] = m.Onchain
	}
	if m.Escrow != nil {
		out["escrow"] = m.Escrow
	}
	if m.Items != nil {
		out["items"] = m.Items
	}
	if m.ChainOrderID != "" {
		out["chainOrderId"] = m.ChainOrderID
	}
	if m.DropMetadataURI != "" {
		out["dropMetadataUri"] = m.DropMetadataURI
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object into the named fields it recognises and an Other
// bucket for everything else, preserving unknown keys instead of dropping them.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	other := make(map[string]any)
	for k, v := range raw {
		if namedMetadataKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		other[k] = val
	}
	if v, ok := raw["pickup"]; ok {
		if err := json.Unmarshal(v, &m.Pickup); err != nil {
			return err
		}
	}
	if v, ok := raw["drop"]; ok {
		if err := json.Unmarshal(v, &m.Drop); err != nil {
			return err
		}
	}
	if v, ok := raw["onchain"]; ok {
		if err := json.Unmarshal(v, &m.Onchain); err != nil {
			return err
		}
	}
	if v, ok := raw["escrow"]; ok {
		if err := json.Unmarshal(v, &m.Escrow); err != nil {
			return err
		}
	}
	if v, ok := raw["items"]; ok {
		if err := json.Unmarshal(v, &m.Items); err != nil {
			return err
		}
	}
	if v, ok := raw["chainOrderId"]; ok {
		if err := json.Unmarshal(v, &m.ChainOrderID); err != nil {
			return err
		}
	}
	if v, ok := raw["dropMetadataUri"]; ok {
		if err := json.Unmarshal(v, &m.DropMetadataURI); err != nil {
			return err
		}
	}
	if len(other) > 0 {
		m.Other = other
	}
	return nil
}

type Order struct {
	ID           string
	Buyer        string
	Supplier     string
	TotalAmount  decimal.Decimal
	Currency     string
	ChainOrderID string // canonical decimal string
	Status       OrderStatus
	Metadata     Metadata
	ApprovedAt   *time.Time
	FundedAt     *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Shipment struct {
	ID              string
	OrderID         string
	ShipmentNo      int64
	Supplier        string
	Buyer           string
	AssignedCourier string
	PickupLat       float64
	PickupLon       float64
	DropLat         float64
	DropLon         float64
	DueBy           time.Time
	Status          ShipmentStatus
	Metadata        Metadata
	PickedUpAt      *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionPayload is the deterministic input the typed data is reconstructed from; it is
// never trusted from the caller after creation, only replayed from storage.
type SessionPayload struct {
	ShipmentHash    string  `json:"shipmentHash"`
	OrderID         string  `json:"orderId"`
	LocationHash    string  `json:"locationHash"`
	ClaimedTs       int64   `json:"claimedTs"`
	DistanceMeters  int64   `json:"distanceMeters,omitempty"`
	CurrentLat      float64 `json:"currentLat"`
	CurrentLon      float64 `json:"currentLon"`
	RadiusM         float64 `json:"radiusM"`
	Notes           string  `json:"notes,omitempty"`
}

type SigningSession struct {
	SessionUID            string
	ShipmentID            string
	Kind                  SessionKind
	Courier               string
	Supplier              string // the counterparty address for this session (supplier for pickup, buyer for drop)
	ChainOrderID          string
	Deadline              time.Time
	Status                SessionStatus
	CourierNonce          string
	SupplierNonce         string
	ContextHash           string
	CourierSignature      []byte
	CounterpartySignature []byte
	Payload               SessionPayload
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type MagicLink struct {
	TokenHash string
	Role      MagicLinkRole
	JTI       string
	ExpiresAt time.Time
	UsedAt    *time.Time
	SessionID string
}

type Proof struct {
	ID             int64
	ShipmentNo     int64
	Kind           ProofKind
	Signer         string
	ClaimedTs      int64
	PhotoHash      string
	PhotoCID       string
	DistanceMeters *int64
	WithinRadius   bool
	CreatedAt      time.Time
}

type Payment struct {
	ID         string
	OrderID    string
	Payer      string
	Payee      string
	Amount     decimal.Decimal
	Currency   string
	Status     PaymentStatus
	EscrowTx   string
	ReleaseTx  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Product struct {
	Owner        string
	SkuID        string
	Name         string
	Unit         string
	MinThreshold int64
	TargetStock  int64
	Active       bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Package eip712 builds the PODxShipment typed-data domain and the PickupApproval/DropApproval
// struct hashes for the PODx shipment-approval flow. There is no generic EIP-712 encoder
// available, so the domain separator and struct hash are hand-rolled the way a document-signing
// SDK hardcodes one hash per document version instead of reaching for a generic ASN.1/CBOR
// encoder, a small, explicit, versioned struct per type.
package eip712

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/accordsai/podx/internal/cryptox"
	"github.com/ethereum/go-ethereum/common"
)

// DomainName and DomainVersion identify the PODxShipment signing domain.
const (
	DomainName    = "PODxShipment"
	DomainVersion = "1"
)

var (
	eip712DomainTypeHash = cryptox.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	// PickupApproval carries no distanceMeters field, matching the shipment registry's
	// confirmPickup((bytes32,uint256,bytes32,uint64), bytes, bytes) tuple.
	pickupApprovalTypeHash = cryptox.Keccak256([]byte(
		"PickupApproval(bytes32 shipmentId,uint256 orderId,bytes32 locationHash,uint64 claimedTs)"))
	dropApprovalTypeHash = cryptox.Keccak256([]byte(
		"DropApproval(bytes32 shipmentId,uint256 orderId,bytes32 locationHash,uint64 claimedTs,uint256 distanceMeters)"))
)

// Domain is the EIP-712 domain for the PODxShipment signing surface.
type Domain struct {
	ChainID           int64
	VerifyingContract string
}

// SeparatorHash returns keccak256(encode(EIP712Domain(...))) for d.
func (d Domain) SeparatorHash() [32]byte {
	nameHash := cryptox.Keccak256([]byte(DomainName))
	versionHash := cryptox.Keccak256([]byte(DomainVersion))
	chainID := new(big.Int).SetInt64(d.ChainID)
	packed := concat(
		eip712DomainTypeHash,
		nameHash,
		versionHash,
		leftPad32(chainID.Bytes()),
		leftPad32(common.HexToAddress(d.VerifyingContract).Bytes()),
	)
	var out [32]byte
	copy(out[:], cryptox.Keccak256(packed))
	return out
}

// Approval is the deterministic content of either a PickupApproval or DropApproval typed
// struct. ShipmentHash, OrderID, LocationHash, and ClaimedTs are shared by both approval kinds;
// DistanceMeters belongs to DropApproval only and is ignored when hashing a PickupApproval.
type Approval struct {
	ShipmentHash   [32]byte
	OrderID        *big.Int
	LocationHash   [32]byte
	ClaimedTs      int64
	DistanceMeters int64
}

// StructHash returns keccak256(encode(PickupApproval(...))) or the DropApproval equivalent,
// selected by kind ("pickup" or "drop"). PickupApproval has no distanceMeters field, so it is
// excluded from both the type hash and the packed encoding for kind == "pickup".
func (a Approval) StructHash(kind string) [32]byte {
	if kind == "drop" {
		packed := concat(
			dropApprovalTypeHash,
			a.ShipmentHash[:],
			leftPad32(a.OrderID.Bytes()),
			a.LocationHash[:],
			leftPad32(big.NewInt(a.ClaimedTs).Bytes()),
			leftPad32(big.NewInt(a.DistanceMeters).Bytes()),
		)
		var out [32]byte
		copy(out[:], cryptox.Keccak256(packed))
		return out
	}
	packed := concat(
		pickupApprovalTypeHash,
		a.ShipmentHash[:],
		leftPad32(a.OrderID.Bytes()),
		a.LocationHash[:],
		leftPad32(big.NewInt(a.ClaimedTs).Bytes()),
	)
	var out [32]byte
	copy(out[:], cryptox.Keccak256(packed))
	return out
}

// Digest computes the final EIP-712 signing digest: keccak256(0x1901 || domainSeparator || structHash).
func Digest(domainSeparator, structHash [32]byte) [32]byte {
	buf := make([]byte, 0, 66)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domainSeparator[:]...)
	buf = append(buf, structHash[:]...)
	var out [32]byte
	copy(out[:], cryptox.Keccak256(buf))
	return out
}

// ScaleCoordinate converts a decimal-degree coordinate into a scaled integer using
// round-half-to-even, matching the location hash rule of scaling by 10^6 with round-half-to-even.
func ScaleCoordinate(deg float64) int64 {
	return int64(math.RoundToEven(deg * 1e6))
}

// LocationHash computes keccak256(abi.encode(int256 latScaled, int256 lonScaled, uint64 claimedTs))
// used as the leaf of both approval types.
func LocationHash(lat, lon float64, claimedTs int64) [32]byte {
	latScaled := big.NewInt(ScaleCoordinate(lat))
	lonScaled := big.NewInt(ScaleCoordinate(lon))
	packed := concat(
		signedLeftPad32(latScaled),
		signedLeftPad32(lonScaled),
		leftPad32(big.NewInt(claimedTs).Bytes()),
	)
	var out [32]byte
	copy(out[:], cryptox.Keccak256(packed))
	return out
}

func concat(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// signedLeftPad32 encodes a possibly-negative int256 in two's complement, 32-byte big-endian,
// matching Solidity's abi.encode for negative values.
func signedLeftPad32(v *big.Int) []byte {
	if v.Sign() >= 0 {
		return leftPad32(v.Bytes())
	}
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	twos := new(big.Int).Add(mod, v)
	return leftPad32(twos.Bytes())
}

// Message is the wire form of a PickupApproval/DropApproval typed message: the uint256 orderId
// is a decimal string and the hashes are 0x-prefixed hex. Approval holds the native forms used
// for hashing and recovery.
type Message struct {
	ShipmentHash   string `json:"shipmentHash"`
	OrderID        string `json:"orderId"`
	LocationHash   string `json:"locationHash"`
	ClaimedTs      int64  `json:"claimedTs"`
	DistanceMeters int64  `json:"distanceMeters"`
}

// ToWireMessage renders the typed struct's wire form for inclusion in a client-facing payload.
func (a Approval) ToWireMessage() Message {
	return Message{
		ShipmentHash:   "0x" + common.Bytes2Hex(a.ShipmentHash[:]),
		OrderID:        a.OrderID.String(),
		LocationHash:   "0x" + common.Bytes2Hex(a.LocationHash[:]),
		ClaimedTs:      a.ClaimedTs,
		DistanceMeters: a.DistanceMeters,
	}
}

// FromWireMessage reconstructs an Approval from a Message's decimal-string/hex fields, the
// inverse of ToWireMessage. Used to rebuild the exact signed struct from a stored session
// payload rather than trusting a freshly supplied one.
func FromWireMessage(m Message) (Approval, error) {
	shipmentHash, err := decodeHash32(m.ShipmentHash)
	if err != nil {
		return Approval{}, fmt.Errorf("eip712: shipmentHash: %w", err)
	}
	locationHash, err := decodeHash32(m.LocationHash)
	if err != nil {
		return Approval{}, fmt.Errorf("eip712: locationHash: %w", err)
	}
	orderID, ok := new(big.Int).SetString(m.OrderID, 10)
	if !ok {
		return Approval{}, fmt.Errorf("eip712: orderId %q is not a decimal integer", m.OrderID)
	}
	return Approval{
		ShipmentHash:   shipmentHash,
		OrderID:        orderID,
		LocationHash:   locationHash,
		ClaimedTs:      m.ClaimedTs,
		DistanceMeters: m.DistanceMeters,
	}, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

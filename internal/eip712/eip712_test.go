package eip712

import (
	"math/big"
	"testing"
)

func TestSeparatorHash_DeterministicPerDomain(t *testing.T) {
	d1 := Domain{ChainID: 8453, VerifyingContract: "0x0000000000000000000000000000000000dEaD"}
	d2 := Domain{ChainID: 8453, VerifyingContract: "0x0000000000000000000000000000000000dEaD"}
	if d1.SeparatorHash() != d2.SeparatorHash() {
		t.Fatalf("expected identical domains to hash identically")
	}

	d3 := Domain{ChainID: 1, VerifyingContract: d1.VerifyingContract}
	if d1.SeparatorHash() == d3.SeparatorHash() {
		t.Fatalf("expected distinct chain ids to hash differently")
	}
}

func TestStructHash_PickupAndDropDiffer(t *testing.T) {
	a := Approval{
		ShipmentHash:   [32]byte{1, 2, 3},
		OrderID:        big.NewInt(42),
		LocationHash:   LocationHash(37.7749, -122.4194, 1700000000),
		ClaimedTs:      1700000000,
		DistanceMeters: 14,
	}
	pickup := a.StructHash("pickup")
	drop := a.StructHash("drop")
	if pickup == drop {
		t.Fatalf("expected PickupApproval and DropApproval type hashes to diverge")
	}
}

func TestDigest_RoundTrip(t *testing.T) {
	domain := Domain{ChainID: 8453, VerifyingContract: "0x0000000000000000000000000000000000dEaD"}
	a := Approval{
		ShipmentHash:   [32]byte{9, 9, 9},
		OrderID:        big.NewInt(7),
		LocationHash:   LocationHash(0, 0, 5),
		ClaimedTs:      5,
		DistanceMeters: 0,
	}
	d1 := Digest(domain.SeparatorHash(), a.StructHash("pickup"))
	d2 := Digest(domain.SeparatorHash(), a.StructHash("pickup"))
	if d1 != d2 {
		t.Fatalf("expected digest computation to be deterministic")
	}

	// changing any field must change the digest.
	a2 := a
	a2.ClaimedTs = 6
	d3 := Digest(domain.SeparatorHash(), a2.StructHash("pickup"))
	if d1 == d3 {
		t.Fatalf("expected digest to change when claimedTs changes")
	}
}

func TestLocationHash_NegativeCoordinatesRoundTrip(t *testing.T) {
	h1 := LocationHash(-37.8136, 144.9631, 1700000000)
	h2 := LocationHash(-37.8136, 144.9631, 1700000000)
	if h1 != h2 {
		t.Fatalf("expected identical inputs to hash identically")
	}
	h3 := LocationHash(-37.8136, 144.9632, 1700000000)
	if h1 == h3 {
		t.Fatalf("expected a coordinate change to change the hash")
	}
}

func TestScaleCoordinate_RoundHalfToEven(t *testing.T) {
	// 0.0000005 * 1e6 = 0.5, round-half-to-even rounds to 0.
	if got := ScaleCoordinate(0.0000005); got != 0 {
		t.Fatalf("expected round-half-to-even to round 0.5 to 0, got %d", got)
	}
	// 0.0000015 * 1e6 = 1.5, round-half-to-even rounds to 2.
	if got := ScaleCoordinate(0.0000015); got != 2 {
		t.Fatalf("expected round-half-to-even to round 1.5 to 2, got %d", got)
	}
}

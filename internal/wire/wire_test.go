package wire

import "testing"

func TestParseChainOrderID_HexAndDecimalAgree(t *testing.T) {
	fromHex, err := ParseChainOrderID("0x1")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	fromDec, err := ParseChainOrderID("1")
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	if fromHex != fromDec {
		t.Fatalf("expected 0x1 and 1 to canonicalize identically, got %q and %q", fromHex, fromDec)
	}
	if fromHex != "1" {
		t.Fatalf("expected canonical decimal string \"1\", got %q", fromHex)
	}
}

func TestParseChainOrderID_LargeHex(t *testing.T) {
	got, err := ParseChainOrderID("0x18BCFE56800")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "1700000000000" {
		t.Fatalf("expected 1700000000000, got %s", got)
	}
}

func TestParseChainOrderID_RejectsNegative(t *testing.T) {
	if _, err := ParseChainOrderID("-1"); err == nil {
		t.Fatalf("expected negative chainOrderId to be rejected")
	}
}

func TestParseChainOrderID_RejectsGarbage(t *testing.T) {
	if _, err := ParseChainOrderID("not-a-number"); err == nil {
		t.Fatalf("expected garbage input to be rejected")
	}
}

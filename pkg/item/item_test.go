package item

import "testing"

func TestSiblingAndAppend(t *testing.T) {
	var head *Item
	head = Append(head, NewString(StringKey("ssid"), "test-ap"))
	head = Append(head, NewString(StringKey("bssid"), "de:ad:be:ef:00:01"))

	got := Sibling(head, StringKey("bssid"))
	if got == nil || got.ValueString() != "de:ad:be:ef:00:01" {
		t.Fatalf("Sibling lookup failed: %+v", got)
	}

	if Sibling(head, StringKey("missing")) != nil {
		t.Fatalf("expected nil for missing key")
	}

	if Count(head) != 2 {
		t.Fatalf("expected 2 siblings, got %d", Count(head))
	}
}

func TestChildPath(t *testing.T) {
	leaf := NewU32(U32Key(2), 42)
	mid := &Item{Key: U32Key(1), Children: leaf}
	root := Append(nil, mid)

	got := ChildPath(root, 1, 2)
	if got == nil {
		t.Fatalf("expected nested match")
	}
	v, ok := got.ValueU32()
	if !ok || v != 42 {
		t.Fatalf("unexpected value: %v ok=%v", v, ok)
	}

	if ChildPath(root, 1, 99) != nil {
		t.Fatalf("expected nil for non-matching nested key")
	}
}

func TestHasFlag(t *testing.T) {
	it := NewString(StringKey("flags"), "[AUTH][ASSOC]")
	if !it.HasFlag("ASSOC") {
		t.Fatalf("expected ASSOC flag present")
	}
	if it.HasFlag("AUTHORIZED") {
		t.Fatalf("did not expect partial-token match")
	}
}

func TestNth(t *testing.T) {
	var head *Item
	for i := 0; i < 5; i++ {
		head = Append(head, NewU32(U32Key(uint32(i)), uint32(i*10)))
	}
	third := Nth(head, 2)
	v, _ := third.ValueU32()
	if v != 20 {
		t.Fatalf("expected value 20, got %d", v)
	}
	if Nth(head, 10) != nil {
		t.Fatalf("expected nil past end of chain")
	}
}

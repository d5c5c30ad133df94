package engine

import "testing"

func TestBitsetExtendAndTest(t *testing.T) {
	var b Bitset

	if b.Size() != 0 {
		t.Errorf("Expected empty bitset, got size %d", b.Size())
	}

	first := b.Extend(3)
	if first != 0 {
		t.Errorf("Expected first extension to start at 0, got %d", first)
	}
	second := b.Extend(2)
	if second != 3 {
		t.Errorf("Expected second extension to start at 3, got %d", second)
	}
	if b.Size() != 5 {
		t.Errorf("Expected size 5, got %d", b.Size())
	}

	// Bits start cleared
	for i := 0; i < b.Size(); i++ {
		if b.Test(i) {
			t.Errorf("Expected bit %d to start cleared", i)
		}
	}

	b.Set(1, true)
	b.Set(4, true)
	b.Set(1, false)

	if b.Test(1) {
		t.Error("Expected bit 1 to be cleared again")
	}
	if !b.Test(4) {
		t.Error("Expected bit 4 to be set")
	}
}

func TestBitsetCrossesWordBoundary(t *testing.T) {
	var b Bitset
	b.Extend(130)

	for _, i := range []int{0, 63, 64, 127, 129} {
		b.Set(i, true)
		if !b.Test(i) {
			t.Errorf("Expected bit %d to be set", i)
		}
	}
	if b.Test(128) {
		t.Error("Expected bit 128 to stay cleared")
	}

	snap := b.Snapshot()
	if len(snap) != 130 {
		t.Fatalf("Expected snapshot of 130 bits, got %d", len(snap))
	}
	if !snap[63] || !snap[64] || snap[65] {
		t.Error("Snapshot does not match bit state around the word boundary")
	}
}

func TestBitsetSetOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected Set beyond the bitset size to panic")
		}
	}()

	var b Bitset
	b.Extend(4)
	b.Set(4, true)
}

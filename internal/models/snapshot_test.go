package models

import "testing"

func TestSnapshotValid(t *testing.T) {
	cases := []struct {
		name string
		snap *Snapshot
		want bool
	}{
		{"nil", nil, false},
		{"matching buffer", &Snapshot{Width: 2, Height: 3, Pixels: make([]byte, 6)}, true},
		{"short buffer", &Snapshot{Width: 2, Height: 3, Pixels: make([]byte, 5)}, false},
		{"zero width", &Snapshot{Width: 0, Height: 3}, false},
		// 3 * 0x5555555555555556 wraps to 2 on 64-bit ints.
		{"overflowing dimensions", &Snapshot{Width: 3, Height: 0x5555555555555556, Pixels: make([]byte, 2)}, false},
		{"oversized side", &Snapshot{Width: MaxSnapshotDimension + 1, Height: 1, Pixels: make([]byte, MaxSnapshotDimension+1)}, false},
	}
	for _, tc := range cases {
		if got := tc.snap.Valid(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSnapshotFingerprint(t *testing.T) {
	a := &Snapshot{Width: 2, Height: 2, Pixels: []byte{1, 2, 3, 4}}
	b := &Snapshot{Width: 4, Height: 1, Pixels: []byte{1, 2, 3, 4}}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("dimensions must be part of the fingerprint")
	}
	if a.Fingerprint() != (&Snapshot{Width: 2, Height: 2, Pixels: []byte{1, 2, 3, 4}}).Fingerprint() {
		t.Fatalf("equal snapshots must share a fingerprint")
	}
	if len(a.Fingerprint()) != 64 {
		t.Fatalf("expected a 32-byte hex digest, got %q", a.Fingerprint())
	}
	var missing *Snapshot
	if missing.Fingerprint() != "" {
		t.Fatalf("nil snapshot must have an empty fingerprint")
	}
}

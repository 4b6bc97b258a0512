package models

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Target is an opaque handle to something the engine can act on, as reported
// by the target locator.
type Target struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Snapshot is an observed state of a target. Pixels holds one grey sample per
// position in row-major order.
type Snapshot struct {
	TargetID   string    `json:"target_id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Pixels     []byte    `json:"pixels"`
	CapturedAt time.Time `json:"captured_at"`
}

// MaxSnapshotDimension bounds each side of a snapshot.
const MaxSnapshotDimension = 1 << 16

// Valid reports whether the sample buffer matches the declared dimensions.
func (s *Snapshot) Valid() bool {
	if s == nil || s.Width <= 0 || s.Height <= 0 {
		return false
	}
	// Bounded sides keep Width*Height from overflowing.
	if s.Width > MaxSnapshotDimension || s.Height > MaxSnapshotDimension {
		return false
	}
	return len(s.Pixels) == s.Width*s.Height
}

// At returns the sample at column x, row y.
func (s *Snapshot) At(x, y int) byte {
	return s.Pixels[y*s.Width+x]
}

// Fingerprint returns a hex BLAKE3 digest of the dimensions and samples.
func (s *Snapshot) Fingerprint() string {
	if s == nil {
		return ""
	}
	h := blake3.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(s.Width))
	binary.BigEndian.PutUint32(dims[4:8], uint32(s.Height))
	_, _ = h.Write(dims[:])
	_, _ = h.Write(s.Pixels)
	return hex.EncodeToString(h.Sum(nil))
}

package dispatch

import (
	"testing"
	"time"
)

func TestOffsetSpreadsAcrossWindow(t *testing.T) {
	d := NewDistributor()
	window := time.Hour
	total := 10

	for i := 0; i < total; i++ {
		offset := d.Offset(i, total, window)

		base := float64(window) * float64(i) / float64(total-1)
		lo := time.Duration(base * (1 - jitterFraction))
		hi := time.Duration(base * (1 + jitterFraction))

		if offset < lo || offset > hi {
			t.Errorf("Offset(%d, %d, %v) = %v, want within [%v, %v]", i, total, window, offset, lo, hi)
		}
	}
}

func TestOffsetFirstJobStartsNearZero(t *testing.T) {
	d := NewDistributor()

	offset := d.Offset(0, 10, time.Hour)
	if offset != 0 {
		t.Errorf("Offset(0, 10, 1h) = %v, want 0", offset)
	}
}

func TestOffsetNeverNegative(t *testing.T) {
	d := NewDistributor()

	for i := 0; i < 100; i++ {
		if offset := d.Offset(i%5, 5, time.Minute); offset < 0 {
			t.Fatalf("Offset returned negative delay %v", offset)
		}
	}
}

func TestOffsetSoloAccount(t *testing.T) {
	d := NewDistributor()

	for i := 0; i < 50; i++ {
		offset := d.Offset(0, 1, time.Hour)
		if offset < soloDelayMin || offset > soloDelayMax {
			t.Fatalf("solo Offset = %v, want within [%v, %v]", offset, soloDelayMin, soloDelayMax)
		}
	}
}

func TestOffsetZeroWindow(t *testing.T) {
	d := NewDistributor()

	for i := 0; i < 50; i++ {
		offset := d.Offset(2, 5, 0)
		if offset < soloDelayMin || offset > soloDelayMax {
			t.Fatalf("zero-window Offset = %v, want within [%v, %v]", offset, soloDelayMin, soloDelayMax)
		}
	}
}

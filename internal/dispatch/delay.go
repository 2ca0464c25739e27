package dispatch

import (
	"math/rand"
	"sync"
	"time"
)

// Solo delay bounds used when there is nothing to spread: a single account
// or a zero-length window still must not start at a fixed instant.
const (
	soloDelayMin = 5 * time.Second
	soloDelayMax = 30 * time.Second
)

// jitterFraction is the symmetric jitter applied to each spread offset
const jitterFraction = 0.10

// Distributor computes per-job start offsets that spread job starts
// roughly evenly across a window while avoiding a fixed cadence.
type Distributor struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDistributor creates a distributor with a time-based seed
func NewDistributor() *Distributor {
	return &Distributor{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Offset returns the start delay for the job at index (0-based) out of
// total, spread across window. The base offset is deterministic in index;
// a ±10% jitter is drawn independently per call and the result clamped
// to be non-negative.
func (d *Distributor) Offset(index, total int, window time.Duration) time.Duration {
	if window > 0 && total > 1 {
		base := float64(window) * float64(index) / float64(total-1)
		jitter := d.uniform(-jitterFraction, jitterFraction) * base
		offset := base + jitter
		if offset < 0 {
			offset = 0
		}
		return time.Duration(offset)
	}

	// Single account or zero-length window: short random delay to avoid
	// perfectly synchronized starts.
	return time.Duration(d.uniform(float64(soloDelayMin), float64(soloDelayMax)))
}

func (d *Distributor) uniform(lo, hi float64) float64 {
	d.mu.Lock()
	f := d.rng.Float64()
	d.mu.Unlock()
	return lo + f*(hi-lo)
}

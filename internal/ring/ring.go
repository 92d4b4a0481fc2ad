// Package ring implements the shared per-sample signal front-end: a
// power-of-two ring buffer of derived sample statistics, and the bitrate
// table that maps a symbol rate to sample counts and ring offsets.
package ring

import (
	"fmt"
	"math"
)

// BaseFrequency is the NFC carrier frequency in Hz (13.56 MHz).
const BaseFrequency = 13.56e6

// Sample is one ring entry: the derived statistics for a single IQ sample.
type Sample struct {
	Magnitude float64 // m = sqrt(I^2 + Q^2)
	Filtered  float64 // f = m - mean (DC removed)
	Depth     float64 // modulation depth, clamped >= 0
	Deviation float64 // running mean absolute deviation (sigma)
}

// Ring is the SFE's single-writer / multi-reader sample history. Capacity
// must be a power of two, per the ring-safety invariant in spec §8.1.
type Ring struct {
	buf   []Sample
	mask  uint64
	clock uint64

	pwr  float64
	mean float64
	mad  float64

	PowerLevelThreshold float64
}

// New creates a Ring with the given power-of-two capacity (>=256).
func New(capacity int) (*Ring, error) {
	if capacity < 256 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity %d must be a power of two >= 256", capacity)
	}
	return &Ring{
		buf:                 make([]Sample, capacity),
		mask:                uint64(capacity - 1),
		PowerLevelThreshold: 0.05,
	}, nil
}

// Clock returns the current monotonically increasing signalClock.
func (r *Ring) Clock() uint64 { return r.clock }

// Ready reports whether the ring has been filled at least once, per the
// "detectors do not run until signalClock >= N" invariant.
func (r *Ring) Ready() bool { return r.clock >= uint64(len(r.buf)) }

// Push converts one IQ sample into a Sample record, updates the EMAs, and
// writes it into the ring, advancing the clock.
//
// fs is the sample rate in Hz; it determines the EMA time constants.
func (r *Ring) Push(i, q float64, fs float64) Sample {
	m := math.Hypot(i, q)

	wPwr := 1 - 1000/fs
	wMean := 1 - 100000/fs

	r.pwr = decayEMA(r.pwr, m, wPwr)
	r.mean = decayEMA(r.mean, m, wMean)
	r.mad = decayEMA(r.mad, math.Abs(m-r.mean), wMean)

	filtered := m - r.mean

	depth := 0.0
	if r.mean > 0 {
		depth = (r.mean - m) / r.mean
		if depth < 0 {
			depth = 0
		}
	}

	s := Sample{
		Magnitude: m,
		Filtered:  filtered,
		Depth:     depth,
		Deviation: r.mad,
	}

	r.buf[r.clock&r.mask] = s
	r.clock++
	return s
}

// At returns the sample written `back` positions before the current clock
// (back=0 is "now", the most recently written sample). The caller must not
// request a `back` larger than the ring capacity.
func (r *Ring) At(back uint64) Sample {
	idx := (r.clock - 1 - back) & r.mask
	return r.buf[idx]
}

// Envelope returns the current smoothed power-level estimate, used by
// detectors to early-exit below PowerLevelThreshold.
func (r *Ring) Envelope() float64 { return r.pwr }

// decayEMA applies `v <- v*w + x*(1-w)`.
func decayEMA(v, x, w float64) float64 {
	return v*w + x*(1-w)
}

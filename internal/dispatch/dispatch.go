// Package dispatch arbitrates the RF-path detectors (NFC-A, NFC-B, NFC-F)
// over a single shared sample ring, holding exactly one technology locked
// at a time, per spec §4.7.
package dispatch

import (
	"errors"

	"github.com/cwsl/nfclab/internal/nfca"
	"github.com/cwsl/nfclab/internal/nfcb"
	"github.com/cwsl/nfclab/internal/nfcf"
	"github.com/cwsl/nfclab/internal/ring"
	"github.com/cwsl/nfclab/internal/tech"
)

// Result reports why NextFrame returned without a frame.
type Result int

const (
	FrameReady Result = iota
	NoPattern
	NoCarrier
	End
)

// Source supplies one IQ sample pair at a time, per spec §4.1.
type Source interface {
	// Next reports the next IQ sample. ok is false at end of stream.
	Next() (i, q float64, ok bool)
}

// DefaultMaxWaitSamples bounds how many samples NextFrame will push through
// the ring with no technology locked before reporting NoPattern or
// NoCarrier, absent an
// explicit deadline from config.
const DefaultMaxWaitSamples = 1 << 20

// Decoder arbitrates NfcA/NfcB/NfcF detectors over one Source, per spec
// §4.7. Detectors are tried in a fixed priority order each time none is
// locked; once one locks, it alone drives Decode until it emits a frame
// or loses lock.
type Decoder struct {
	src    Source
	r      *ring.Ring
	fs     float64
	ended  bool

	detectors []tech.Detector
	active    tech.Detector

	maxWaitSamples int
}

// ErrEndOfStream describes an exhausted Source. NextFrame does not return
// it: NextFrame returns no error and reports end of stream as the End
// result.
var ErrEndOfStream = errors.New("dispatch: end of stream")

// New creates a Decoder over src at sample rate fs with the given ring
// capacity (must be a power of two >= 256, per spec §8.1).
func New(src Source, fs float64, ringCapacity int) (*Decoder, error) {
	r, err := ring.New(ringCapacity)
	if err != nil {
		return nil, err
	}
	d := &Decoder{
		src:            src,
		r:              r,
		fs:             fs,
		maxWaitSamples: DefaultMaxWaitSamples,
		detectors: []tech.Detector{
			nfca.New(),
			nfcb.New(),
			nfcf.New(),
		},
	}
	for _, det := range d.detectors {
		det.Initialize(fs)
	}
	return d, nil
}

// SetMaxWaitSamples overrides the NoPattern/NoCarrier deadline.
func (d *Decoder) SetMaxWaitSamples(n int) {
	if n > 0 {
		d.maxWaitSamples = n
	}
}

// Ring exposes the underlying sample ring, e.g. for diagnostics.
func (d *Decoder) Ring() *ring.Ring { return d.r }

func (d *Decoder) pushOne() bool {
	i, q, ok := d.src.Next()
	if !ok {
		d.ended = true
		return false
	}
	d.r.Push(i, q, d.fs)
	return true
}

// NextFrame advances the dispatcher until a frame is emitted, the
// technology search goes cold, or the stream ends, per spec §4.7 step 1.
// timeoutMs bounds how long NextFrame will search with no technology
// locked before giving up; timeoutMs <= 0 falls back to the deadline set
// by SetMaxWaitSamples (or DefaultMaxWaitSamples). Distinguishing
// NoCarrier from NoPattern follows spec §7's scenario S1: if the
// envelope never crossed PowerLevelThreshold during the whole search
// window, no carrier was ever present; otherwise a carrier was seen but
// no technology's pattern locked onto it.
func (d *Decoder) NextFrame(timeoutMs int) (tech.RawFrame, Result) {
	if d.ended && d.active == nil {
		return tech.RawFrame{}, End
	}

	maxWait := d.maxWaitSamples
	if timeoutMs > 0 {
		maxWait = int(float64(timeoutMs) / 1000.0 * d.fs)
		if maxWait <= 0 {
			maxWait = 1
		}
	}

	waited := 0
	sawCarrier := false
	for {
		if d.active == nil {
			if !d.r.Ready() {
				if !d.pushOne() {
					return tech.RawFrame{}, End
				}
				continue
			}
			if d.r.Envelope() > d.r.PowerLevelThreshold {
				sawCarrier = true
			}
			locked := false
			for _, det := range d.detectors {
				if det.Detect(d.r) {
					d.active = det
					locked = true
					break
				}
			}
			if locked {
				waited = 0
				sawCarrier = false
				continue
			}
			if !d.pushOne() {
				return tech.RawFrame{}, End
			}
			waited++
			if waited >= maxWait {
				if !sawCarrier {
					return tech.RawFrame{}, NoCarrier
				}
				return tech.RawFrame{}, NoPattern
			}
			continue
		}

		frame, done := d.active.Decode(d.r)
		if done {
			d.active = nil
			return frame, FrameReady
		}
		if !d.pushOne() {
			d.active.Reset()
			d.active = nil
			return tech.RawFrame{}, End
		}
	}
}

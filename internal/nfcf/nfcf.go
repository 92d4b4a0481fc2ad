// Package nfcf implements the NFC-F (FeliCa) detector: Manchester framing
// at 212/424 kbit/s with a 48-symbol preamble, the 0xB2 0x4D sync
// bytes, and CCITT-16 (seed 0, no reflection) framing, per spec §4.5.
package nfcf

import (
	"github.com/cwsl/nfclab/internal/ring"
	"github.com/cwsl/nfclab/internal/tech"
)

// Pattern is the NFC-F symbol alphabet.
type Pattern int

const (
	PatternNone Pattern = iota
	PatternOne          // Manchester 1
	PatternZero         // Manchester 0
	PatternE            // no modulation: EOF
)

// preambleHalfSymbols is the minimum count of alternating half-symbol
// correlation peaks required before accepting lock, per spec §4.5.
const preambleHalfSymbols = 94

var syncBytes = [2]byte{0xB2, 0x4D}

// modulationStatus holds per-rate correlator state for NFC-F.
type modulationStatus struct {
	Rate ring.Rate

	PreambleCount  int
	Polarity       bool // searchModeState: observed (false) vs reversed (true)
	HalfSymbolSign float64
	Locked         bool
}

func (m *modulationStatus) reset() {
	rate := m.Rate
	*m = modulationStatus{Rate: rate}
}

// Correlator implements the NFC-F Manchester correlator for one rate.
type Correlator struct {
	bp  ring.BitrateParams
	mod modulationStatus
}

// NewCorrelator builds a Correlator for 212k or 424k; NFC-F does not run
// at 106k or 848k, per spec §4.5.
func NewCorrelator(bp ring.BitrateParams) *Correlator {
	return &Correlator{bp: bp, mod: modulationStatus{Rate: bp.Rate}}
}

// search counts half-symbol correlation peaks against the preamble
// threshold, accepting lock once preambleHalfSymbols consecutive peaks
// are observed. Polarity is decided by the sign of the last integrated
// correlation at lock time, per spec §4.5.
func (c *Correlator) search(r *ring.Ring, correlationThreshold float64) bool {
	if r.Envelope() <= r.PowerLevelThreshold {
		c.mod.PreambleCount = 0
		return false
	}
	now := r.At(0)
	half := now.Filtered - r.At(uint64(c.bp.THlf)).Filtered

	if abs(half) < correlationThreshold*r.Envelope() {
		c.mod.PreambleCount = 0
		return false
	}

	c.mod.PreambleCount++
	c.mod.HalfSymbolSign = half
	if c.mod.PreambleCount >= preambleHalfSymbols {
		c.mod.Polarity = half < 0
		c.mod.Locked = true
		return true
	}
	return false
}

// classify returns the Manchester symbol at the current half-symbol
// boundary, honouring the locked polarity, per spec §4.5.
func (c *Correlator) classify(r *ring.Ring) Pattern {
	now := r.At(0)
	half := now.Filtered - r.At(uint64(c.bp.THlf)).Filtered
	if c.mod.Polarity {
		half = -half
	}

	if abs(half) < 0.05*r.Envelope() {
		return PatternE
	}
	if half > 0 {
		return PatternOne
	}
	return PatternZero
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Assembler turns a Manchester bit stream into bytes, stripping the
// 0xB2 0x4D sync prefix and flagging SyncError if absent, per spec §4.5.
type Assembler struct {
	bits     int
	data     byte
	buffer   []byte
	maxFrame int
	flags    tech.Flags
	started  bool
}

// NewAssembler creates an Assembler with the given max frame size.
func NewAssembler(maxFrame int) *Assembler {
	if maxFrame <= 0 {
		maxFrame = tech.DefaultMaxFrameSize
	}
	return &Assembler{maxFrame: maxFrame}
}

type frameResult struct {
	Data  []byte
	Flags tech.Flags
}

// Feed consumes one Manchester symbol.
func (a *Assembler) Feed(p Pattern) (frameResult, bool) {
	if p == PatternE {
		return a.finish()
	}
	a.started = true

	bit := byte(0)
	if p == PatternOne {
		bit = 1
	}
	a.data |= bit << uint(a.bits)
	a.bits++
	if a.bits < 8 {
		return frameResult{}, false
	}
	a.bits = 0
	if len(a.buffer) >= a.maxFrame+2 {
		a.flags |= tech.Truncated
		return a.finish()
	}
	a.buffer = append(a.buffer, a.data)
	a.data = 0
	return frameResult{}, false
}

func (a *Assembler) finish() (frameResult, bool) {
	if !a.started {
		return frameResult{}, false
	}
	flags := a.flags
	data := a.buffer
	if len(data) < 2 || data[0] != syncBytes[0] || data[1] != syncBytes[1] {
		flags |= tech.SyncError
	} else {
		data = data[2:]
	}
	return frameResult{Data: data, Flags: flags}, true
}

// Detector implements tech.Detector for NFC-F.
type Detector struct {
	fs    float64
	table *ring.Table

	correlators          map[ring.Rate]*Correlator
	lockedRate           ring.Rate
	locked               bool
	assembler            *Assembler
	frame                tech.FrameStatus
	proto                tech.ProtocolStatus
	correlationThreshold float64
	expectListen         bool
}

// New creates an NFC-F detector.
func New() *Detector {
	return &Detector{
		proto:                tech.ProtocolStatus{MaxFrameSize: tech.DefaultMaxFrameSize},
		correlationThreshold: 0.3,
	}
}

func (d *Detector) ID() tech.ID { return tech.NfcF }

func (d *Detector) Initialize(fs float64) {
	d.fs = fs
	tbl, _ := ring.NewTable(fs)
	d.table = tbl
	d.correlators = map[ring.Rate]*Correlator{
		ring.Rate212: NewCorrelator(tbl.Params(ring.Rate212)),
		ring.Rate424: NewCorrelator(tbl.Params(ring.Rate424)),
	}
}

func (d *Detector) Detect(r *ring.Ring) bool {
	if !r.Ready() || r.Envelope() <= r.PowerLevelThreshold {
		return false
	}
	for _, rate := range [...]ring.Rate{ring.Rate212, ring.Rate424} {
		c := d.correlators[rate]
		if c.search(r, d.correlationThreshold) {
			d.lockedRate = rate
			d.locked = true
			d.assembler = NewAssembler(d.proto.MaxFrameSize)
			d.frame.FrameStart = r.Clock()
			d.frame.SymbolRate = rate.Kbps()
			return true
		}
	}
	return false
}

func (d *Detector) Decode(r *ring.Ring) (tech.RawFrame, bool) {
	if !d.locked {
		return tech.RawFrame{}, false
	}
	c := d.correlators[d.lockedRate]
	p := c.classify(r)

	res, done := d.assembler.Feed(p)
	if !done {
		return tech.RawFrame{}, false
	}

	d.frame.FrameEnd = r.Clock()
	frameType := tech.PollFrame
	if d.expectListen {
		frameType = tech.ListenFrame
	}

	if len(res.Data) >= 2 && !res.Flags.Has(tech.SyncError) && !tech.CheckTrailingCRC16(res.Data, tech.NfcFCRC) {
		res.Flags |= tech.CrcError
	}

	out := tech.RawFrame{
		Tech:        tech.NfcF,
		FrameType:   frameType,
		Phase:       tech.ApplicationFrame,
		SampleStart: d.frame.FrameStart,
		SampleEnd:   d.frame.FrameEnd,
		TimeStart:   float64(d.frame.FrameStart) / d.fs,
		TimeEnd:     float64(d.frame.FrameEnd) / d.fs,
		SymbolRate:  d.frame.SymbolRate,
		Flags:       res.Flags,
		Data:        res.Data,
	}

	d.frame.Reset()
	d.expectListen = !d.expectListen
	d.Reset()
	return out, true
}

func (d *Detector) Reset() {
	d.locked = false
	d.assembler = nil
	for _, c := range d.correlators {
		c.mod.reset()
	}
}

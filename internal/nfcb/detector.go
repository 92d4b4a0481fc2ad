package nfcb

import (
	"github.com/cwsl/nfclab/internal/ring"
	"github.com/cwsl/nfclab/internal/tech"
)

// Detector implements tech.Detector for ISO/IEC 14443 Type B, per spec
// §4.4.
type Detector struct {
	fs    float64
	table *ring.Table

	correlators [4]*Correlator
	lockedRate  ring.Rate
	locked      bool
	assembler   *Assembler

	frame tech.FrameStatus
	proto tech.ProtocolStatus

	// TR1/S1/S2 listen-side windows, in samples, set in Initialize;
	// ATTRIB does not change them.
	tr1Min, tr1Max int
	s1Min, s1Max   int
	s2Min, s2Max   int

	expectListen bool
}

// New creates an NFC-B detector with default adaptive protocol parameters.
func New() *Detector {
	d := &Detector{}
	d.proto = tech.ProtocolStatus{MaxFrameSize: tech.DefaultMaxFrameSize}
	return d
}

func (d *Detector) ID() tech.ID { return tech.NfcB }

func (d *Detector) Initialize(fs float64) {
	d.fs = fs
	tbl, _ := ring.NewTable(fs)
	d.table = tbl
	for r := ring.Rate106; r <= ring.Rate848; r++ {
		d.correlators[r] = NewCorrelator(tbl.Params(r))
	}
	etu := tbl.Params(ring.Rate106).T
	d.tr1Min, d.tr1Max = 80*etu/100, 200*etu/100
	d.s1Min, d.s1Max = 8*etu, 12*etu
	d.s2Min, d.s2Max = 8*etu, 12*etu
}

func (d *Detector) Detect(r *ring.Ring) bool {
	if !r.Ready() || r.Envelope() <= r.PowerLevelThreshold {
		return false
	}
	// NFC-B activation runs at 106k only; higher rates apply after PPS,
	// which is out of scope for the search phase per spec §4.4.
	c := d.correlators[ring.Rate106]
	var locked bool
	if !d.expectListen {
		locked = c.searchPoll(r)
	} else {
		locked = c.stepListen(r, d.tr1Min, d.tr1Max, d.s1Min, d.s1Max, d.s2Min, d.s2Max)
	}
	if locked {
		d.lockedRate = ring.Rate106
		d.locked = true
		d.assembler = NewAssembler(d.proto.MaxFrameSize)
		d.frame.FrameStart = r.Clock()
		d.frame.SymbolRate = ring.Rate106.Kbps()
	}
	return locked
}

func (d *Detector) Decode(r *ring.Ring) (tech.RawFrame, bool) {
	if !d.locked {
		return tech.RawFrame{}, false
	}
	c := d.correlators[d.lockedRate]
	p := c.classifyPoll(r)

	res, done := d.assembler.Feed(p)
	if !done {
		return tech.RawFrame{}, false
	}

	d.frame.FrameEnd = r.Clock()
	frameType := tech.PollFrame
	if d.expectListen {
		frameType = tech.ListenFrame
	}

	phase := tech.CarrierPhase
	if len(res.Data) > 0 {
		phase = classify(res.Data[0])
		if !d.expectListen && res.Data[0] == cmdREQB {
			d.frame.LastCommand = cmdREQB
		} else if d.expectListen && d.frame.LastCommand == cmdREQB {
			parseREQBResponse(res.Data, &d.proto, func(fwi byte) int {
				return fwiSamples(fwi, d.fs)
			})
		} else if !d.expectListen && res.Data[0] == cmdATTRIB {
			parseATTRIB(res.Data, &d.proto, nil)
		}
	}

	if len(res.Data) >= 2 && !tech.CheckTrailingCRC16(res.Data, tech.NfcBCRC) {
		res.Flags |= tech.CrcError
	}

	out := tech.RawFrame{
		Tech:        tech.NfcB,
		FrameType:   frameType,
		Phase:       phase,
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
		if c != nil {
			c.mod.reset()
		}
	}
}

// fwiSamples maps an FWI nibble to frame-waiting-time samples: FWT =
// (256 * 16 / fC) * 2^FWI, per ISO/IEC 14443-3.
func fwiSamples(fwi byte, fs float64) int {
	if fwi > 14 {
		fwi = 14
	}
	mult := 1 << uint(fwi)
	return int(float64(256*16*mult) / 13.56e6 * fs)
}

package nfca

import (
	"github.com/cwsl/nfclab/internal/ring"
	"github.com/cwsl/nfclab/internal/tech"
)

// Detector implements tech.Detector for ISO/IEC 14443 Type A, per spec
// §4.3. It owns one Correlator per candidate rate and, once one locks,
// drives that rate's Assembler until a frame boundary is reached.
type Detector struct {
	fs    float64
	table *ring.Table

	correlators [4]*Correlator
	lockedRate  ring.Rate
	locked      bool
	assembler   *Assembler

	frame tech.FrameStatus
	proto tech.ProtocolStatus

	expectListen bool // true once a poll frame has been emitted
}

// defaultFrameGuardSeconds and defaultFrameWaitingSeconds are the ISO/IEC
// 14443-3 nominal TR0min and FWT (fwi=4) values, used until a RATS
// response supplies technology-specific ones.
const (
	defaultFrameGuardSeconds   = 1172.0 / 13.56e6
	defaultFrameWaitingSeconds = 4.84e-3
)

// New creates an NFC-A detector with default adaptive protocol parameters.
func New() *Detector {
	d := &Detector{}
	d.proto = tech.ProtocolStatus{
		MaxFrameSize:     tech.DefaultMaxFrameSize,
		FrameGuardTime:   0,
		FrameWaitingTime: 0,
		StartUpGuardTime: 0,
		RequestGuardTime: 0,
	}
	return d
}

func (d *Detector) ID() tech.ID { return tech.NfcA }

func (d *Detector) Initialize(fs float64) {
	d.fs = fs
	tbl, _ := ring.NewTable(fs)
	d.table = tbl
	for r := ring.Rate106; r <= ring.Rate848; r++ {
		d.correlators[r] = NewCorrelator(tbl.Params(r), fs)
	}
	d.proto.FrameGuardTime = int(defaultFrameGuardSeconds * fs)
	d.proto.FrameWaitingTime = int(defaultFrameWaitingSeconds * fs)
}

// Detect runs each candidate rate's search-phase correlator in turn and
// promotes the first to lock, per spec §4.7 step 3.
func (d *Detector) Detect(r *ring.Ring) bool {
	if !r.Ready() {
		return false
	}
	if r.Envelope() <= r.PowerLevelThreshold {
		return false
	}

	if d.expectListen && d.frame.WaitingEnd != 0 && r.Clock() > d.frame.WaitingEnd {
		// No listen preamble arrived within FWT: give up waiting and
		// return to poll search, per spec §4.3's response-timing contract.
		d.expectListen = false
	}

	for rate := ring.Rate106; rate <= ring.Rate848; rate++ {
		c := d.correlators[rate]
		if c.bp.T < 4 {
			continue // undersampled rate, skipped per spec §7
		}
		var locked bool
		if !d.expectListen {
			locked = c.searchPoll(r)
		} else if d.frame.GuardEnd == 0 || r.Clock() >= d.frame.GuardEnd {
			locked = c.searchListenASK(r)
		}
		if locked {
			d.lockedRate = rate
			d.locked = true
			side := pollSide
			if d.expectListen {
				side = listenSide
			}
			d.assembler = NewAssembler(side, d.proto.MaxFrameSize)
			d.frame.FrameStart = r.Clock()
			d.frame.SymbolRate = rate.Kbps()
			return true
		}
	}
	return false
}

// Decode advances the locked correlator/assembler by one ring sample, per
// spec §4.7 step 4.
func (d *Detector) Decode(r *ring.Ring) (tech.RawFrame, bool) {
	if !d.locked {
		return tech.RawFrame{}, false
	}
	c := d.correlators[d.lockedRate]

	var p Pattern
	if !d.expectListen {
		p = c.classifyPoll(r)
	} else if d.lockedRate == ring.Rate106 {
		p = c.stepListenASK(r)
	} else {
		p = c.stepListenBPSK(r)
	}

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
		isPoll := !d.expectListen
		phase, _ = classify(res.Data[0], isPoll)
		if isPoll && res.Data[0] == cmdRATS {
			// The paired listen ATS is parsed on the following frame once
			// we see the listen side; this poll frame only records intent.
			d.frame.LastCommand = cmdRATS
		} else if !isPoll && d.frame.LastCommand == cmdRATS {
			parseRATSResponse(res.Data, &d.proto, func(mult int) int {
				if mult == 0 {
					return 0
				}
				return int(float64(mult) / 13.56e6 * d.fs)
			})
		}
	}

	if len(res.Data) >= 2 && !res.Flags.Has(tech.ShortFrame) && !tech.CheckTrailingCRC16(res.Data, tech.NfcACRC) {
		res.Flags |= tech.CrcError
	}

	out := tech.RawFrame{
		Tech:        tech.NfcA,
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

	if frameType == tech.PollFrame {
		symbolDelay := uint64(d.correlators[ring.Rate106].bp.SymbolDelayDetect)
		d.frame.GuardEnd = d.frame.FrameEnd + uint64(d.proto.FrameGuardTime) + symbolDelay
		d.frame.WaitingEnd = d.frame.FrameEnd + uint64(d.proto.FrameWaitingTime) + symbolDelay
		if d.frame.WaitingEnd < d.frame.GuardEnd {
			d.frame.WaitingEnd = d.frame.GuardEnd
		}
	} else {
		d.frame.GuardEnd = 0
		d.frame.WaitingEnd = 0
	}

	d.frame.Reset()
	d.expectListen = !d.expectListen
	d.Reset()

	return out, true
}

// Reset clears all per-rate ModulationStatus and returns to search, per
// the resetModulation() lifecycle rule in spec §3.
func (d *Detector) Reset() {
	d.locked = false
	d.assembler = nil
	for _, c := range d.correlators {
		if c != nil {
			c.mod.reset()
		}
	}
}

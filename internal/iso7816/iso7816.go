// Package iso7816 implements the ISO/IEC 7816-3 contact-card decoder. It
// runs on a four-channel logic-level capture (IO, CLK, RST, VCC), not the
// RF path, recovering the symbol rate from the card's own ATR, per spec
// §4.6.
package iso7816

import "github.com/cwsl/nfclab/internal/tech"

// Convention is the byte encoding convention signalled by TS.
type Convention int

const (
	Direct Convention = iota
	Inverse
)

// ProtocolType selects T=0 or T=1 framing.
type ProtocolType int

const (
	T0 ProtocolType = iota
	T1
)

// ErrorCodeType selects the epilogue check for T=1 blocks.
type ErrorCodeType int

const (
	ErrorLRC ErrorCodeType = iota
	ErrorCRC
)

// LogicSample is one sample of the 4-channel contact capture.
type LogicSample struct {
	IO, CLK, RST, VCC bool
}

// state is the top-level ISO-7816 state machine, per spec §4.6.
type state int

const (
	stateIdle state = iota
	stateReset
	stateSync
	stateTS
	stateATR
	stateOperational
)

// Config holds the fixed capture parameters the decoder needs: sample
// rate of the logic capture.
type Config struct {
	SampleRate float64
}

// Decoder implements the ISO-7816 state machine described in spec §4.6. It
// is fed one LogicSample at a time and may emit zero or more frames per
// sample (the synthetic IsoVccHigh/Low and IsoRstHigh/Low power-state
// events, plus real ATR/PPS/TPDU/T=1-block frames).
type Decoder struct {
	cfg Config

	st state

	prevVCC, prevRST bool
	rstRiseTime      uint64

	fallingEdges   []uint64
	etuSamples     int
	convention     Convention

	// Character assembler
	charBitIdx   int
	charData     byte
	charBuf      []byte
	charStart    uint64
	inChar       bool

	atr         []byte
	atrT0       byte
	protoType   ProtocolType
	errorCode   ErrorCodeType
	maxInfoSize int

	clockFrequency     float64
	elementaryTimeUnit int // ETU in samples
	frequencyFactor    int
	baudRateFactor     int
	extraGuardTime     int
	characterGuardTime int
	characterWaitTime  int
	blockGuardTime     int
	blockWaitingTime   int

	pb *protoBuf

	clock uint64
}

// NewDecoder creates an ISO-7816 decoder for a capture at the given sample
// rate.
func NewDecoder(cfg Config) *Decoder {
	return &Decoder{cfg: cfg, st: stateIdle}
}

// Feed consumes one logic-level sample and returns any frames completed as
// a result (synthetic power-state events and/or a real protocol frame).
func (d *Decoder) Feed(s LogicSample) []tech.RawFrame {
	var out []tech.RawFrame
	clock := d.clock
	d.clock++

	if s.VCC != d.prevVCC {
		out = append(out, d.synthetic(clock, s.VCC))
		d.prevVCC = s.VCC
		if s.VCC {
			d.st = stateReset
		} else {
			d.reset()
		}
	}

	if s.RST != d.prevRST {
		out = append(out, d.syntheticRST(clock, s.RST))
		if s.VCC && !d.prevRST && s.RST {
			d.rstRiseTime = clock
			d.st = stateSync
			d.fallingEdges = nil
		}
		d.prevRST = s.RST
	}

	switch d.st {
	case stateSync:
		d.stepSync(clock, s)
	case stateTS:
		if frame, ok := d.stepTS(clock, s); ok {
			out = append(out, frame)
		}
	case stateATR:
		if frame, ok := d.stepATR(clock, s); ok {
			out = append(out, frame)
		}
	case stateOperational:
		if frame, ok := d.stepOperational(clock, s); ok {
			out = append(out, frame)
		}
	}

	return out
}

func (d *Decoder) reset() {
	*d = Decoder{cfg: d.cfg, st: stateIdle}
}

// synthetic builds the zero-length IsoVccHigh/Low event, per spec §4.6.
func (d *Decoder) synthetic(clock uint64, high bool) tech.RawFrame {
	flags := tech.Flags(0)
	data := []byte("VccLow")
	if high {
		data = []byte("VccHigh")
	}
	return tech.RawFrame{
		Tech:        tech.Iso7816,
		FrameType:   tech.NoFrameType,
		Phase:       tech.StartupPhase,
		SampleStart: clock,
		SampleEnd:   clock,
		Flags:       flags,
		Data:        data,
	}
}

func (d *Decoder) syntheticRST(clock uint64, high bool) tech.RawFrame {
	data := []byte("RstLow")
	if high {
		data = []byte("RstHigh")
	}
	return tech.RawFrame{
		Tech:        tech.Iso7816,
		FrameType:   tech.NoFrameType,
		Phase:       tech.StartupPhase,
		SampleStart: clock,
		SampleEnd:   clock,
		Data:        data,
	}
}

// stepSync measures ETUsamples from the first two falling edges of IO
// (the three bits of TS = 0011), per spec §4.6.
func (d *Decoder) stepSync(clock uint64, s LogicSample) {
	if len(d.fallingEdges) == 0 && !s.IO {
		d.fallingEdges = append(d.fallingEdges, clock)
		return
	}
	if len(d.fallingEdges) == 1 && s.IO {
		// rising edge after the first low; wait for the second falling edge
		return
	}
	if len(d.fallingEdges) == 1 && !s.IO && clock > d.fallingEdges[0] {
		d.fallingEdges = append(d.fallingEdges, clock)
		d.etuSamples = int(clock-d.fallingEdges[0]) / 3
		if d.etuSamples < 1 {
			d.etuSamples = 1
		}
		d.frequencyFactor = 372
		d.baudRateFactor = 1
		d.clockFrequency = d.cfg.SampleRate / float64(d.etuSamples) * float64(d.frequencyFactor) / float64(d.baudRateFactor)
		d.elementaryTimeUnit = d.etuSamples
		d.st = stateTS
		d.inChar = false
		d.charBitIdx = 0
	}
}

// stepTS assembles the TS byte plus parity and decides the convention.
func (d *Decoder) stepTS(clock uint64, s LogicSample) (tech.RawFrame, bool) {
	b, done := d.shiftChar(clock, s)
	if !done {
		return tech.RawFrame{}, false
	}
	switch b {
	case 0x3B:
		d.convention = Direct
	case 0x03:
		d.convention = Inverse
		b = 0x3F
	default:
		d.reset()
		return tech.RawFrame{}, false
	}
	d.atr = []byte{b}
	d.st = stateATR
	return tech.RawFrame{}, false
}

// shiftChar accumulates one UART-style character: a start bit (the first
// low sample seen while no character is in progress), 8 data bits at 1 ETU
// spacing (MSB/LSB order per convention), then the parity bit, per spec
// §4.6. The character is reported at the start of the stop bit; the parity
// bit is not checked.
func (d *Decoder) shiftChar(clock uint64, s LogicSample) (byte, bool) {
	if !d.inChar {
		if s.IO {
			return 0, false // waiting for start bit (space)
		}
		d.inChar = true
		d.charBitIdx = 0
		d.charData = 0
		d.charStart = clock
		return 0, false
	}

	etu := uint64(max1(d.etuSamples))
	pos := (clock - d.charStart) / etu
	if pos == 0 {
		return 0, false // still in the start bit
	}
	if pos >= 1 && pos <= 8 {
		bitIdx := pos - 1
		bit := byte(0)
		if s.IO {
			bit = 1
		}
		if d.convention == Inverse {
			bit ^= 1
			d.charData |= bit << uint(7-bitIdx)
		} else {
			d.charData |= bit << uint(bitIdx)
		}
		return 0, false
	}
	if pos == 10 {
		// Parity bit window elapsed (not checked); character complete.
		d.inChar = false
		return d.charData, true
	}
	return 0, false
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// stepATR accumulates up to 32 ATR bytes, parsing T0/TAi/TBi/TCi/TDi as
// they complete, per spec §4.6.
func (d *Decoder) stepATR(clock uint64, s LogicSample) (tech.RawFrame, bool) {
	b, done := d.shiftChar(clock, s)
	if !done {
		return tech.RawFrame{}, false
	}
	d.atr = append(d.atr, b)

	if complete, _ := atrComplete(d.atr); complete {
		parseATR(d.atr, d)
		d.st = stateOperational
		frame := tech.RawFrame{
			Tech:        tech.Iso7816,
			FrameType:   tech.AtrFrame,
			Phase:       tech.StartupPhase,
			SampleStart: d.rstRiseTime,
			SampleEnd:   clock,
			Data:        append([]byte(nil), d.atr...),
		}
		return frame, true
	}
	if len(d.atr) >= 33 {
		d.st = stateOperational
	}
	return tech.RawFrame{}, false
}

// stepOperational assembles T=0 TPDUs or T=1 blocks once the ATR has been
// parsed. The full procedure-byte dance (ACK/NULL/SW1SW2) and T=1 NAD/PCB
// framing are driven by the protocol parser in block.go.
func (d *Decoder) stepOperational(clock uint64, s LogicSample) (tech.RawFrame, bool) {
	b, done := d.shiftChar(clock, s)
	if !done {
		return tech.RawFrame{}, false
	}
	return d.feedProtocolByte(clock, b)
}

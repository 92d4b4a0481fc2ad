package nfca

import "github.com/cwsl/nfclab/internal/tech"

// side distinguishes which alphabet (poll Miller vs listen ASK/BPSK) the
// Assembler is consuming.
type side int

const (
	pollSide side = iota
	listenSide
)

// Assembler turns a Pattern token stream into bytes with parity, applying
// the SOF/EOF rules of spec §4.3. It is independent of the correlator so
// it can be driven directly in tests with synthetic pattern sequences.
type Assembler struct {
	side side

	started   bool
	data      byte
	bits      int
	parity    byte
	buffer    []byte
	maxFrame  int
	flags     tech.Flags

	prevWasY bool
	prevWasZ bool
}

// NewAssembler creates an Assembler for the given side and max frame size.
func NewAssembler(s side, maxFrame int) *Assembler {
	if maxFrame <= 0 {
		maxFrame = tech.DefaultMaxFrameSize
	}
	return &Assembler{side: s, maxFrame: maxFrame}
}

// frameResult is returned once the assembler reaches EOF.
type frameResult struct {
	Data  []byte
	Flags tech.Flags
}

// Feed consumes one Pattern token. It returns (result, true) once the
// frame is complete (EOF observed or truncated).
func (a *Assembler) Feed(p Pattern) (frameResult, bool) {
	switch a.side {
	case pollSide:
		return a.feedPoll(p)
	default:
		return a.feedListen(p)
	}
}

func (a *Assembler) feedPoll(p Pattern) (frameResult, bool) {
	if !a.started {
		if p != PatternZ {
			return frameResult{}, false
		}
		a.started = true
		a.prevWasY = false
		a.prevWasZ = false
		return frameResult{}, false
	}

	// EOF: two consecutive Y, or Y directly after Z.
	if p == PatternY {
		if a.prevWasY || a.prevWasZ {
			return a.finish()
		}
		a.prevWasY = true
		a.prevWasZ = false
		return frameResult{}, false
	}
	a.prevWasY = false
	a.prevWasZ = (p == PatternZ)

	bit := byte(0)
	if p == PatternX {
		bit = 1
	}
	return a.pushBit(bit)
}

func (a *Assembler) feedListen(p Pattern) (frameResult, bool) {
	if !a.started {
		if p != PatternD && p != PatternS {
			return frameResult{}, false
		}
		a.started = true
		return frameResult{}, false
	}

	if p == PatternE || p == PatternO {
		return a.finish()
	}

	bit := byte(0)
	if p == PatternD || p == PatternM {
		bit = 1
	}
	return a.pushBit(bit)
}

// pushBit accumulates one bit, LSB first within a byte, applying odd
// parity every 9th bit for full frames, per spec §4.3.
func (a *Assembler) pushBit(bit byte) (frameResult, bool) {
	if a.bits < 8 {
		a.data |= bit << uint(a.bits)
		a.bits++
		if a.bits == 8 {
			// 9th bit (parity) comes next.
		}
		return frameResult{}, false
	}

	// This is the parity bit.
	expected := tech.OddParity(a.data)
	if bit != expected {
		a.flags |= tech.ParityError
	}

	if len(a.buffer) >= a.maxFrame {
		a.flags |= tech.Truncated
		return a.finish()
	}
	a.buffer = append(a.buffer, a.data)
	a.data = 0
	a.bits = 0
	return frameResult{}, false
}

func (a *Assembler) finish() (frameResult, bool) {
	// A short frame: exactly one byte of 7 bits without parity (REQA/WUPA).
	if len(a.buffer) == 0 && a.bits == 7 {
		a.buffer = append(a.buffer, a.data)
		a.flags |= tech.ShortFrame
	} else if a.bits != 0 && a.bits != 7 {
		// Partial byte left over at EOF without reaching parity: the bits
		// gathered so far are discarded and no flag is set, per the
		// assembler's fixed 8-bit-plus-parity contract.
	}
	res := frameResult{Data: a.buffer, Flags: a.flags}
	return res, true
}

// Reset clears the assembler for the next frame.
func (a *Assembler) Reset() {
	*a = Assembler{side: a.side, maxFrame: a.maxFrame}
}

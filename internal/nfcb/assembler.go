package nfcb

import "github.com/cwsl/nfclab/internal/tech"

// Assembler turns an H/L pattern stream into bytes per spec §4.4's UART
// framing: a start bit (space/L), 8 data bits LSB-first, a stop bit
// (mark/H), then 1-6 ETU of EGT before the next start bit. Ten consecutive
// spaces end the frame.
type Assembler struct {
	started      bool
	inByte       bool
	data         byte
	bitsInByte   int
	buffer       []byte
	maxFrame     int
	flags        tech.Flags
	consecutiveL int
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

// Feed consumes one H/L symbol. It returns (result, true) once EOF (10
// consecutive low symbols) is observed or the frame is truncated.
func (a *Assembler) Feed(p Pattern) (frameResult, bool) {
	if !a.started {
		if p != PatternL {
			return frameResult{}, false
		}
		a.started = true
		a.inByte = true
		a.bitsInByte = 0
		a.data = 0
		a.consecutiveL = 1
		return frameResult{}, false
	}

	if !a.inByte {
		// Between bytes: either a new start bit (L) or EGT (H).
		if p == PatternL {
			a.consecutiveL++
			if a.consecutiveL >= 10 {
				return a.finish()
			}
			a.inByte = true
			a.bitsInByte = 0
			a.data = 0
			return frameResult{}, false
		}
		a.consecutiveL = 0
		return frameResult{}, false
	}

	if p == PatternL {
		a.consecutiveL++
		if a.consecutiveL >= 10 {
			return a.finish()
		}
	} else {
		a.consecutiveL = 0
	}
	if a.bitsInByte < 8 {
		if p == PatternH {
			a.data |= 1 << uint(a.bitsInByte)
		}
		a.bitsInByte++
		return frameResult{}, false
	}

	// Stop bit: must be H (mark).
	if p != PatternH {
		a.flags |= tech.ParityError // stream error: stop bit violated
	}
	if len(a.buffer) >= a.maxFrame {
		a.flags |= tech.Truncated
		return a.finish()
	}
	a.buffer = append(a.buffer, a.data)
	a.inByte = false
	return frameResult{}, false
}

func (a *Assembler) finish() (frameResult, bool) {
	return frameResult{Data: a.buffer, Flags: a.flags}, true
}

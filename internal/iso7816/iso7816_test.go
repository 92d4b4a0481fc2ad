package iso7816

import (
	"testing"

	"github.com/cwsl/nfclab/internal/tech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testETU = 10 // samples per ETU for the synthetic captures below

// charSamples builds the logic-level sample sequence for one UART
// character at the direct convention: start bit (low), 8 data bits
// LSB-first, parity (unused by these tests, held high), stop bit (high),
// each held for testETU samples.
func charSamples(b byte) []LogicSample {
	var out []LogicSample
	hold := func(io bool, n int) {
		for i := 0; i < n; i++ {
			out = append(out, LogicSample{IO: io, CLK: true, RST: true, VCC: true})
		}
	}
	hold(false, testETU) // start bit
	for i := 0; i < 8; i++ {
		bit := (b>>uint(i))&1 == 1
		hold(bit, testETU)
	}
	hold(true, testETU) // parity (assume correct/even convention not checked here)
	hold(true, testETU) // stop bit
	return out
}

func feedIdle(d *Decoder, n int) {
	for i := 0; i < n; i++ {
		d.Feed(LogicSample{IO: true, CLK: true, RST: true, VCC: true})
	}
}

func TestShiftCharRecoversByteDirectConvention(t *testing.T) {
	d := NewDecoder(Config{SampleRate: 1e6})
	d.etuSamples = testETU
	d.convention = Direct
	d.st = stateOperational

	var got byte
	var gotDone bool
	for _, s := range charSamples(0xA5) {
		b, done := d.shiftChar(d.clock, s)
		d.clock++
		if done {
			got = b
			gotDone = true
		}
	}
	require.True(t, gotDone)
	assert.Equal(t, byte(0xA5), got)
}

func TestVccTransitionEmitsSyntheticFrame(t *testing.T) {
	d := NewDecoder(Config{SampleRate: 1e6})
	frames := d.Feed(LogicSample{IO: true, CLK: false, RST: false, VCC: true})
	require.Len(t, frames, 1)
	assert.Equal(t, tech.Iso7816, frames[0].Tech)
	assert.Equal(t, "VccHigh", string(frames[0].Data))
}

func TestRstRisingEdgeEntersSyncState(t *testing.T) {
	d := NewDecoder(Config{SampleRate: 1e6})
	d.Feed(LogicSample{IO: true, CLK: false, RST: false, VCC: true})
	frames := d.Feed(LogicSample{IO: true, CLK: false, RST: true, VCC: true})

	found := false
	for _, f := range frames {
		if string(f.Data) == "RstHigh" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, stateSync, d.st)
}

func TestAtrCompleteMinimalNoInterfaceBytes(t *testing.T) {
	// TS + T0 (no TAi/TBi/TCi/TDi, 0 historical bytes).
	atr := []byte{0x3B, 0x00}
	complete, n := atrComplete(atr)
	assert.True(t, complete)
	assert.Equal(t, 2, n)
}

func TestAtrCompleteWaitsForHistoricalBytes(t *testing.T) {
	atr := []byte{0x3B, 0x02} // T0 says 2 historical bytes, none present yet
	complete, _ := atrComplete(atr)
	assert.False(t, complete)

	atr = append(atr, 0x00, 0x00)
	complete, n := atrComplete(atr)
	assert.True(t, complete)
	assert.Equal(t, 4, n)
}

func TestCheckTrailingLRCDetectsCorruption(t *testing.T) {
	data := []byte{0x00, 0xA0, 0x00, 0x02}
	lrc := tech.LRC(data)
	frame := append(append([]byte(nil), data...), lrc)
	assert.True(t, tech.CheckTrailingLRC(frame))
	frame[0] ^= 0xFF
	assert.False(t, tech.CheckTrailingLRC(frame))
}

package nfcb

import (
	"testing"

	"github.com/cwsl/nfclab/internal/tech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteToUART returns the start-bit, 8 LSB-first data bits, and stop-bit
// H/L pattern sequence for one UART character, per spec §4.4.
func byteToUART(b byte) []Pattern {
	out := []Pattern{PatternL} // start bit
	for i := 0; i < 8; i++ {
		if (b>>uint(i))&1 == 1 {
			out = append(out, PatternH)
		} else {
			out = append(out, PatternL)
		}
	}
	out = append(out, PatternH) // stop bit
	return out
}

func TestAssemblerDecodesOneCharacter(t *testing.T) {
	a := NewAssembler(tech.DefaultMaxFrameSize)

	var res frameResult
	var done bool
	for _, p := range byteToUART(0x05) { // REQB command code
		res, done = a.Feed(p)
	}
	require.False(t, done)

	// 10 consecutive low symbols end the frame.
	for i := 0; i < 10; i++ {
		res, done = a.Feed(PatternL)
		if done {
			break
		}
	}
	require.True(t, done)
	require.Equal(t, []byte{0x05}, res.Data)
	assert.False(t, res.Flags.Has(tech.ParityError))
}

func TestAssemblerFlagsBadStopBit(t *testing.T) {
	a := NewAssembler(tech.DefaultMaxFrameSize)
	p := byteToUART(0x1D)
	p[len(p)-1] = PatternL // corrupt the stop bit
	for _, sym := range p {
		a.Feed(sym)
	}
	var res frameResult
	var done bool
	for i := 0; i < 10 && !done; i++ {
		res, done = a.Feed(PatternL)
	}
	require.True(t, done)
	assert.True(t, res.Flags.Has(tech.ParityError))
}

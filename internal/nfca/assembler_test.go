package nfca

import (
	"testing"

	"github.com/cwsl/nfclab/internal/tech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollBytePatterns returns the Z/X/Y pattern sequence for one byte with
// parity, LSB first, per spec §4.3.
func pollBytePatterns(b byte) []Pattern {
	var out []Pattern
	parity := tech.OddParity(b)
	ones := 0
	for i := 0; i < 8; i++ {
		bit := (b >> uint(i)) & 1
		if bit == 1 {
			ones++
			out = append(out, PatternX)
		} else {
			out = append(out, PatternZ)
		}
	}
	if parity == 1 {
		out = append(out, PatternX)
	} else {
		out = append(out, PatternZ)
	}
	_ = ones
	return out
}

func TestAssemblerPollSingleByteRoundTrip(t *testing.T) {
	a := NewAssembler(pollSide, tech.DefaultMaxFrameSize)

	res, done := a.Feed(PatternZ) // SOF
	require.False(t, done)

	for _, p := range pollBytePatterns(0x26) { // REQA command byte
		res, done = a.Feed(p)
		require.False(t, done)
	}

	// EOF: the parity bit of 0x26 is sent as a Z, and a Y directly after
	// a Z ends the frame.
	res, done = a.Feed(PatternY)
	require.True(t, done)

	require.Equal(t, []byte{0x26}, res.Data)
	assert.False(t, res.Flags.Has(tech.ParityError))
}

func TestAssemblerPollDetectsParityError(t *testing.T) {
	a := NewAssembler(pollSide, tech.DefaultMaxFrameSize)
	a.Feed(PatternZ)

	patterns := pollBytePatterns(0x26)
	// Flip the parity bit (last entry) to the wrong polarity.
	if patterns[len(patterns)-1] == PatternX {
		patterns[len(patterns)-1] = PatternZ
	} else {
		patterns[len(patterns)-1] = PatternX
	}
	for _, p := range patterns {
		a.Feed(p)
	}
	a.Feed(PatternY)
	res, done := a.Feed(PatternY)

	require.True(t, done)
	assert.True(t, res.Flags.Has(tech.ParityError))
}

func TestAssemblerPollShortFrame(t *testing.T) {
	// REQA/WUPA are exactly 7 bits with no parity, per spec §4.3.
	a := NewAssembler(pollSide, tech.DefaultMaxFrameSize)
	a.Feed(PatternZ) // SOF

	// 7 bits of 0x26 = 0100110, LSB first: 0,1,1,0,0,1,0
	bits := []byte{0, 1, 1, 0, 0, 1, 0}
	for _, bit := range bits {
		if bit == 1 {
			a.Feed(PatternX)
		} else {
			a.Feed(PatternZ)
		}
	}
	a.Feed(PatternY)
	res, done := a.Feed(PatternY)

	require.True(t, done)
	assert.True(t, res.Flags.Has(tech.ShortFrame))
	require.Len(t, res.Data, 1)
}

func TestAssemblerPollTruncatesOversizeFrame(t *testing.T) {
	a := NewAssembler(pollSide, 2)
	a.Feed(PatternZ)

	var res frameResult
	var done bool
	for i := 0; i < 5 && !done; i++ {
		for _, p := range pollBytePatterns(0xAA) {
			res, done = a.Feed(p)
			if done {
				break
			}
		}
	}

	require.True(t, done)
	assert.True(t, res.Flags.Has(tech.Truncated))
	assert.Equal(t, 2, len(res.Data))
}

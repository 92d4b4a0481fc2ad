package nfcf

import (
	"testing"

	"github.com/cwsl/nfclab/internal/tech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byteToManchester(b byte) []Pattern {
	var out []Pattern
	for i := 0; i < 8; i++ {
		if (b>>uint(i))&1 == 1 {
			out = append(out, PatternOne)
		} else {
			out = append(out, PatternZero)
		}
	}
	return out
}

func TestAssemblerStripsSyncBytes(t *testing.T) {
	a := NewAssembler(tech.DefaultMaxFrameSize)

	for _, b := range []byte{0xB2, 0x4D, 0x06, 0x11} {
		for _, p := range byteToManchester(b) {
			res, done := a.Feed(p)
			require.False(t, done)
			_ = res
		}
	}
	res, done := a.Feed(PatternE)
	require.True(t, done)
	assert.Equal(t, []byte{0x06, 0x11}, res.Data)
	assert.False(t, res.Flags.Has(tech.SyncError))
}

func TestAssemblerFlagsMissingSync(t *testing.T) {
	a := NewAssembler(tech.DefaultMaxFrameSize)
	for _, b := range []byte{0x06, 0x11} {
		for _, p := range byteToManchester(b) {
			a.Feed(p)
		}
	}
	res, done := a.Feed(PatternE)
	require.True(t, done)
	assert.True(t, res.Flags.Has(tech.SyncError))
}

func TestAssemblerIgnoresPatternEBeforeStart(t *testing.T) {
	a := NewAssembler(tech.DefaultMaxFrameSize)
	_, done := a.Feed(PatternE)
	assert.False(t, done)
}

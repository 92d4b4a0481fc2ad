package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(100)
	require.Error(t, err)

	_, err = New(255)
	require.Error(t, err)

	r, err := New(256)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRingNotReadyBeforeFull(t *testing.T) {
	r, err := New(256)
	require.NoError(t, err)

	for i := 0; i < 255; i++ {
		assert.False(t, r.Ready())
		r.Push(1, 0, 1e6)
	}
	r.Push(1, 0, 1e6)
	assert.True(t, r.Ready())
}

func TestAtIsConsistentWithClock(t *testing.T) {
	// At(0) must always return the most recently pushed sample, per the
	// ring-safety invariant in spec §8.1.
	rapid.Check(t, func(t *rapid.T) {
		r, err := New(256)
		require.NoError(t, err)

		n := rapid.IntRange(1, 1000).Draw(t, "n")
		var lastMag float64
		for i := 0; i < n; i++ {
			mag := rapid.Float64Range(0, 1).Draw(t, "mag")
			s := r.Push(mag, 0, 1e6)
			lastMag = s.Magnitude
		}
		assert.Equal(t, lastMag, r.At(0).Magnitude)
	})
}

func TestClockMonotonic(t *testing.T) {
	r, err := New(256)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		before := r.Clock()
		r.Push(0.5, 0.5, 1e6)
		assert.Equal(t, before+1, r.Clock())
	}
}

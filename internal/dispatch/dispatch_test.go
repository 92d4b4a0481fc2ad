package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource emits n silent IQ samples before ending the stream.
type constSource struct {
	n   int
	pos int
}

func (s *constSource) Next() (float64, float64, bool) {
	if s.pos >= s.n {
		return 0, 0, false
	}
	s.pos++
	return 0, 0, true
}

func TestNextFrameEndsWithEmptyStream(t *testing.T) {
	d, err := New(&constSource{n: 0}, 10e6, 256)
	require.NoError(t, err)

	_, result := d.NextFrame(0)
	assert.Equal(t, End, result)
}

func TestNextFrameReportsNoCarrierOnSilence(t *testing.T) {
	// Enough silent (below-threshold) samples to fill the ring and then
	// exceed a short deadline, but not so many the stream itself ends
	// first. Since the envelope never crosses PowerLevelThreshold, this
	// is a no-carrier condition, not a carrier-present-but-unlocked one.
	d, err := New(&constSource{n: 10000}, 10e6, 256)
	require.NoError(t, err)
	d.SetMaxWaitSamples(500)

	_, result := d.NextFrame(0)
	assert.Equal(t, NoCarrier, result)
}

func TestNextFrameEndsWhenStreamExhaustedDuringSearch(t *testing.T) {
	d, err := New(&constSource{n: 300}, 10e6, 256)
	require.NoError(t, err)
	d.SetMaxWaitSamples(1 << 20)

	_, result := d.NextFrame(0)
	assert.Equal(t, End, result)
}

func TestNextFrameTimeoutMsOverridesMaxWaitSamples(t *testing.T) {
	// 10e6 samples/sec * 0.05s = 500000 samples, comfortably less than
	// the stream length, so the explicit timeoutMs parameter (not the
	// SetMaxWaitSamples default) determines when the search gives up.
	d, err := New(&constSource{n: 1_000_000}, 10e6, 256)
	require.NoError(t, err)
	d.SetMaxWaitSamples(1 << 30)

	_, result := d.NextFrame(50)
	assert.Equal(t, NoCarrier, result)
}

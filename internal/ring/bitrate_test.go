package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableRatesDouble(t *testing.T) {
	tb, skipped := NewTable(50e6)
	assert.Empty(t, skipped, "at 50 Msps every rate should be comfortably oversampled")

	p106 := tb.Params(Rate106)
	p212 := tb.Params(Rate212)
	p424 := tb.Params(Rate424)
	p848 := tb.Params(Rate848)

	// Each doubling of the symbol rate halves the sample count per symbol.
	assert.InDelta(t, float64(p106.T)/2, float64(p212.T), 1)
	assert.InDelta(t, float64(p212.T)/2, float64(p424.T), 1)
	assert.InDelta(t, float64(p424.T)/2, float64(p848.T), 1)
}

func TestNewTableReportsUndersampledRates(t *testing.T) {
	// At a low sample rate, 848k becomes undersampled (T < 4) and must be
	// reported as skipped rather than fatal, per spec §7.
	_, skipped := NewTable(200e3)
	require.NotEmpty(t, skipped)
	for _, err := range skipped {
		var u *ErrUndersampled
		assert.ErrorAs(t, err, &u)
	}
}

func TestBitrateParamsHalfAndQuarter(t *testing.T) {
	tb, _ := NewTable(50e6)
	p := tb.Params(Rate106)
	assert.Equal(t, p.T/2, p.THlf)
	assert.Equal(t, p.T/4, p.TQtr)
	assert.Equal(t, p.T*2, p.T2)
}

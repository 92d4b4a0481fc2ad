package nfca

import "github.com/cwsl/nfclab/internal/ring"

// Correlator implements the per-rate modified-Miller (poll) and ASK/BPSK
// (listen) symbol correlators described in spec §4.3. One Correlator
// tracks a single candidate rate; the Detector owns one per supported rate
// and promotes the first to lock.
type Correlator struct {
	bp   ring.BitrateParams
	mod  ModulationStatus
	fs   float64
}

// NewCorrelator builds a Correlator for the given bitrate parameters.
func NewCorrelator(bp ring.BitrateParams, fs float64) *Correlator {
	c := &Correlator{bp: bp, fs: fs}
	c.mod = ModulationStatus{
		Rate:                 bp.Rate,
		SearchValueThreshold: 0.15,
		SearchPhaseThreshold: 0.05,
	}
	return c
}

// halfSums returns the two half-symbol correlation sums S0 (older half)
// and S1 (newer half) of the filtered signal over the last full symbol
// period, per spec §4.3 step 1.
func (c *Correlator) halfSums(r *ring.Ring) (s0, s1 float64) {
	half := c.bp.THlf
	if half == 0 {
		return 0, 0
	}
	for k := 0; k < half; k++ {
		s1 += r.At(uint64(k)).Filtered
	}
	for k := half; k < 2*half; k++ {
		s0 += r.At(uint64(k)).Filtered
	}
	return s0, s1
}

// searchPoll looks for the first Miller pulse that qualifies as an SOF,
// per spec §4.3 steps 2-4. It returns true once a pulse has been found
// and lock can be raised.
func (c *Correlator) searchPoll(r *ring.Ring) bool {
	if r.Envelope() <= r.PowerLevelThreshold {
		return false
	}
	now := r.At(0)
	if now.Depth < MinimumModulationDeep {
		return false
	}

	s0, s1 := c.halfSums(r)
	sd := (s0 - s1) / float64(max1(c.bp.THlf))

	if sd < c.mod.CorrelatedPeakValue {
		c.mod.CorrelatedPeakValue = sd
		c.mod.CorrelatedPeakTime = r.Clock()
		c.mod.DetectorPeakValue = now.Depth
		c.mod.DetectorPeakTime = r.Clock()
	}

	// Pulse width acceptance window: [T - T/4, T + T/4].
	if c.mod.CorrelatedPeakTime == 0 {
		return false
	}
	width := int(r.Clock() - c.mod.CorrelatedPeakTime)
	if width < c.bp.T-c.bp.TQtr {
		return false
	}
	if width > c.bp.T+c.bp.TQtr {
		// Missed the window: restart the search from here.
		c.mod.CorrelatedPeakValue = 0
		c.mod.CorrelatedPeakTime = 0
		return false
	}

	peakTime := c.mod.CorrelatedPeakTime
	c.mod.SymbolStartTime = subNonNeg(peakTime, uint64(c.bp.THlf))
	c.mod.SymbolEndTime = peakTime
	c.mod.Locked = true
	return true
}

// classifyPoll samples S0/S1/SD at the next synchronisation point and
// returns the symbol observed, per spec §4.3 step 5.
func (c *Correlator) classifyPoll(r *ring.Ring) Pattern {
	s0, s1 := c.halfSums(r)
	sd := (s0 - s1) / float64(max1(c.bp.THlf))

	c.mod.SymbolStartTime = c.mod.SymbolEndTime
	c.mod.SymbolEndTime = r.Clock()

	switch {
	case sd < c.mod.SearchValueThreshold && sd > -c.mod.SearchValueThreshold:
		return PatternY
	case s0 > s1:
		return PatternZ
	default:
		return PatternX
	}
}

// searchListenASK locates the preamble D-pulse for 106k listen frames
// within the TR0..FWT window, per spec §4.3.
func (c *Correlator) searchListenASK(r *ring.Ring) bool {
	if r.Envelope() <= r.PowerLevelThreshold {
		return false
	}
	now := r.At(0)
	if now.Depth < MinimumModulationDeep {
		return false
	}
	c.mod.Locked = true
	return true
}

// stepListenASK classifies one 106k listen symbol by envelope presence.
func (c *Correlator) stepListenASK(r *ring.Ring) Pattern {
	now := r.At(0)
	if now.Depth >= MinimumModulationDeep {
		return PatternD
	}
	return PatternE
}

// stepListenBPSK implements the 212/424/848k subcarrier phase detector:
// multiply the sample by its 1-symbol-delayed self, integrate over T/4,
// and track zero crossings of the phase integral, per spec §4.3. The
// first symbol after lock is always the BPSK start-of-frame phase
// inversion, reported as PatternS rather than M/N so the assembler can
// distinguish SOF from the first data bit.
func (c *Correlator) stepListenBPSK(r *ring.Ring) Pattern {
	now := r.At(0).Filtered
	delayed := r.At(uint64(c.bp.T)).Filtered
	integration := now * delayed * 10

	c.mod.PhaseIntegrate += integration
	if c.mod.PhaseIntegrate > float64(c.bp.T2) {
		c.mod.PhaseIntegrate = float64(c.bp.T2)
	}
	if c.mod.PhaseIntegrate < -float64(c.bp.T2) {
		c.mod.PhaseIntegrate = -float64(c.bp.T2)
	}

	if abs(c.mod.PhaseIntegrate) < c.mod.SearchPhaseThreshold {
		return PatternO
	}
	if !c.mod.BPSKStarted {
		c.mod.BPSKStarted = true
		return PatternS
	}
	if c.mod.PhaseIntegrate > 0 {
		return PatternM
	}
	return PatternN
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

func subNonNeg(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

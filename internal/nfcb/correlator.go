package nfcb

import "github.com/cwsl/nfclab/internal/ring"

// Correlator implements the per-rate NFC-B poll/listen symbol correlator.
type Correlator struct {
	bp  ring.BitrateParams
	mod ModulationStatus
}

// NewCorrelator builds a Correlator for the given bitrate parameters.
func NewCorrelator(bp ring.BitrateParams) *Correlator {
	return &Correlator{bp: bp, mod: ModulationStatus{Rate: bp.Rate}}
}

// searchPoll looks for a falling edge within the modulation-depth window,
// then continuous low, then a rising edge between 10 and 11 ETU after the
// falling edge, per spec §4.4. The high period after the rising edge is
// not measured.
func (c *Correlator) searchPoll(r *ring.Ring) bool {
	if r.Envelope() <= r.PowerLevelThreshold {
		return false
	}
	now := r.At(0)

	if c.mod.FallingEdgeTime == 0 {
		if now.Depth >= MinimumModulationDeep && now.Depth <= MaximumModulationDeep {
			c.mod.FallingEdgeTime = r.Clock()
		}
		return false
	}

	low := r.Clock() - c.mod.FallingEdgeTime
	etu := uint64(c.bp.T)
	if low < 10*etu {
		if now.Depth < MinimumModulationDeep {
			c.mod.FallingEdgeTime = 0 // returned high before 10 ETU
		}
		return false // still within the SOF low period
	}
	if low > 11*etu {
		c.mod.FallingEdgeTime = 0
		return false
	}

	// Confirming rising edge: envelope must have returned high by now.
	if now.Depth >= MinimumModulationDeep {
		return false
	}
	c.mod.RisingEdgeTime = r.Clock()
	c.mod.SymbolStartTime = c.mod.FallingEdgeTime
	c.mod.SymbolEndTime = c.mod.RisingEdgeTime
	c.mod.Locked = true
	return true
}

// classifyPoll samples the envelope at the expected symbol centre and
// returns H (no modulation) or L (modulated), per spec §4.4.
func (c *Correlator) classifyPoll(r *ring.Ring) Pattern {
	now := r.At(0)
	if now.Depth >= MinimumModulationDeep && now.Depth <= MaximumModulationDeep {
		return PatternL
	}
	return PatternH
}

// stepListen advances the TR1->S1->S2 synchronisation state machine for
// the BPSK listen side, per spec §4.4. The min/max windows, in samples,
// are passed in by the Detector.
func (c *Correlator) stepListen(r *ring.Ring, tr1Min, tr1Max, s1Min, s1Max, s2Min, s2Max int) bool {
	elapsed := int(r.Clock() - c.mod.SearchStartTime)
	switch c.mod.Listen {
	case listenTR1:
		if elapsed < tr1Min {
			return false
		}
		if elapsed > tr1Max {
			c.mod.reset()
			return false
		}
		c.mod.Listen = listenS1
		c.mod.SearchStartTime = r.Clock()
		return false
	case listenS1:
		if elapsed < s1Min {
			return false
		}
		if elapsed > s1Max {
			c.mod.reset()
			return false
		}
		c.mod.Listen = listenS2
		c.mod.SearchStartTime = r.Clock()
		return false
	case listenS2:
		if elapsed < s2Min {
			return false
		}
		if elapsed > s2Max {
			c.mod.reset()
			return false
		}
		c.mod.Listen = listenLocked
		c.mod.Locked = true
		return true
	default:
		return true
	}
}

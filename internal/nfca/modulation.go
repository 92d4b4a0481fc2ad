package nfca

import "github.com/cwsl/nfclab/internal/ring"

// MinimumModulationDeep is the default minimum modulation depth required
// to accept a poll-side Miller pulse, per spec §4.3 step 2.
const MinimumModulationDeep = 0.90

// ModulationStatus holds the per-rate correlator state used while
// searching for and tracking lock on an NFC-A symbol stream, per spec §3.
type ModulationStatus struct {
	Rate ring.Rate

	SearchStartTime uint64
	SearchEndTime   uint64
	SearchSyncTime  uint64

	CorrelatedPeakValue float64
	CorrelatedPeakTime  uint64
	DetectorPeakValue   float64
	DetectorPeakTime    uint64
	SearchPulseWidth    int

	SymbolStartTime uint64
	SymbolEndTime   uint64
	SymbolRiseTime  uint64

	FilterIntegrate float64
	PhaseIntegrate  float64

	SearchValueThreshold float64
	SearchPhaseThreshold float64

	Locked bool

	// BPSKStarted marks that the BPSK subcarrier correlator has already
	// emitted its start-of-frame symbol, per spec §4.3's BPSK SOF rule.
	BPSKStarted bool
}

// reset clears the ModulationStatus back to the search state, per the
// resetModulation() lifecycle rule in spec §3.
func (m *ModulationStatus) reset() {
	rate := m.Rate
	*m = ModulationStatus{Rate: rate, SearchValueThreshold: m.SearchValueThreshold, SearchPhaseThreshold: m.SearchPhaseThreshold}
}

// validateSymbolBounds enforces "symbolStartTime <= symbolEndTime when both
// set; any transition that would violate resets both and returns to
// search", per spec §3 invariants.
func (m *ModulationStatus) validateSymbolBounds() bool {
	if m.SymbolStartTime != 0 && m.SymbolEndTime != 0 && m.SymbolStartTime > m.SymbolEndTime {
		m.SymbolStartTime = 0
		m.SymbolEndTime = 0
		return false
	}
	return true
}

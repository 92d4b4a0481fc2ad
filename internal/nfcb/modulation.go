package nfcb

import "github.com/cwsl/nfclab/internal/ring"

// Default modulation depth bounds for the poll-side on-off ASK envelope,
// per spec §4.4: the lower bound rejects noise, the upper bound rejects
// NFC-A's ~100% modulation.
const (
	MinimumModulationDeep = 0.08
	MaximumModulationDeep = 0.60
)

// listenState is the BPSK listen-side synchronisation state machine:
// TR1 (guard) -> S1 -> S2, each with hard ETU windows, per spec §4.4.
type listenState int

const (
	listenTR1 listenState = iota
	listenS1
	listenS2
	listenLocked
)

// ModulationStatus holds the per-rate NFC-B correlator state, per spec §3.
type ModulationStatus struct {
	Rate ring.Rate

	SearchStartTime uint64
	SymbolStartTime uint64
	SymbolEndTime   uint64

	FallingEdgeTime uint64
	RisingEdgeTime  uint64

	Listen listenState
	Locked bool
}

func (m *ModulationStatus) reset() {
	rate := m.Rate
	*m = ModulationStatus{Rate: rate}
}

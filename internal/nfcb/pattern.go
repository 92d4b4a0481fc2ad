// Package nfcb implements the ISO/IEC 14443 Type B detector: on-off ASK
// poll-side framing, BPSK listen-side TR1/S1/S2 synchronisation, and the
// REQB/ATTRIB adaptive timing updates described in spec §4.4.
package nfcb

// Pattern is the NFC-B symbol alphabet: H (no modulation, logic 1) and L
// (modulated, logic 0), per spec §4.4.
type Pattern int

const (
	PatternNone Pattern = iota
	PatternH
	PatternL
)

func (p Pattern) String() string {
	switch p {
	case PatternH:
		return "H"
	case PatternL:
		return "L"
	default:
		return "None"
	}
}

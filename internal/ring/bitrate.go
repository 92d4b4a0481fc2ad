package ring

import "math"

// Rate indexes the four supported NFC symbol rates: 106*2^r kbit/s.
type Rate int

const (
	Rate106 Rate = iota
	Rate212
	Rate424
	Rate848
)

// Kbps returns the nominal bitrate in bits/sec for a Rate.
func (r Rate) Kbps() int {
	return 106000 << uint(r)
}

func (r Rate) String() string {
	switch r {
	case Rate106:
		return "106k"
	case Rate212:
		return "212k"
	case Rate424:
		return "424k"
	case Rate848:
		return "848k"
	default:
		return "invalid"
	}
}

// BitrateParams holds the sample counts and ring offsets derived for one
// symbol rate, per spec §3/§4.2.
type BitrateParams struct {
	Rate Rate

	T    int // samples per full symbol
	THlf int // T/2
	TQtr int // T/4
	TEgt int // T/8
	T2   int // 2T

	// SymbolDelayDetect is the cumulative sample delay of lower rates,
	// used so higher rates "see" the same wall-clock moment.
	SymbolDelayDetect int

	// Ring offsets: "now", 1 symbol ago, 1/2, 1/4, 1/8 symbol ago, and a
	// lookahead slot for the dispatcher's "future" bookkeeping.
	OffsetSignal int
	OffsetDelay0 int // 1 symbol ago
	OffsetDelay1 int // 1/2 symbol ago
	OffsetDelay2 int // 1/4 symbol ago
	OffsetDelay4 int // 1/8 symbol ago
	OffsetDelay8 int
	OffsetFuture int
}

// Table is the immutable, shared, per-rate set of BitrateParams, built once
// for a given sample rate.
type Table struct {
	fs     float64
	params [4]BitrateParams
}

// ErrUndersampled indicates the sample rate cannot resolve symbols at the
// requested rate (T < 4 samples); per spec §7 this rate is skipped, not
// fatal.
type ErrUndersampled struct {
	Rate Rate
	T    int
}

func (e *ErrUndersampled) Error() string {
	return "ring: rate " + e.Rate.String() + " undersampled (T=" + itoa(e.T) + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// NewTable builds the bitrate table for the given sample rate. Rates that
// would be undersampled (T < 4) are included with their computed T and
// reported via the
// returned skipped list, per spec §7's "skipped rather than fatal" rule.
func NewTable(fs float64) (*Table, []error) {
	tb := &Table{fs: fs}
	var skipped []error

	cumulative := 0
	for r := Rate106; r <= Rate848; r++ {
		symsPerCarrier := 128 >> uint(r)
		t := int(math.Round(fs * float64(symsPerCarrier) / BaseFrequency))

		p := BitrateParams{
			Rate:              r,
			T:                 t,
			THlf:              t / 2,
			TQtr:              t / 4,
			TEgt:              t / 8,
			T2:                t * 2,
			SymbolDelayDetect: cumulative,
			OffsetSignal:      0,
			OffsetDelay0:      t,
			OffsetDelay1:      t / 2,
			OffsetDelay2:      t / 4,
			OffsetDelay4:      t / 8,
			OffsetDelay8:      t / 16,
			OffsetFuture:      -t,
		}
		tb.params[r] = p
		cumulative += t

		if t < 4 {
			skipped = append(skipped, &ErrUndersampled{Rate: r, T: t})
		}
	}

	return tb, skipped
}

// Params returns the BitrateParams for a given rate.
func (tb *Table) Params(r Rate) BitrateParams { return tb.params[r] }

// SampleRate returns the sample rate this table was built for.
func (tb *Table) SampleRate() float64 { return tb.fs }

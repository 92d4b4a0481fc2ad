// Package tech holds the types shared by every per-technology detector:
// the RawFrame output value, adaptive frame/protocol status, the flag
// bitfield, and the common Detector contract the dispatcher drives.
package tech

import "github.com/cwsl/nfclab/internal/ring"

// ID names one of the four supported air/contact interfaces.
type ID int

const (
	NfcA ID = iota
	NfcB
	NfcF
	Iso7816
)

func (t ID) String() string {
	switch t {
	case NfcA:
		return "NfcA"
	case NfcB:
		return "NfcB"
	case NfcF:
		return "NfcF"
	case Iso7816:
		return "Iso7816"
	default:
		return "Unknown"
	}
}

// FrameType classifies which side of the exchange emitted a frame.
type FrameType int

const (
	NoFrameType FrameType = iota
	PollFrame
	ListenFrame
	AtrFrame
	PpsFrame
	TpduFrame
	T1BlockFrame
)

// Phase tags the protocol phase a frame belongs to, per spec §3/§4.3.
type Phase int

const (
	CarrierPhase Phase = iota
	SenseFrame
	SelectionFrame
	ApplicationFrame
	StartupPhase
)

// Flags is the bitfield carried on every RawFrame, per spec §7.
type Flags uint32

const (
	ParityError Flags = 1 << iota
	CrcError
	Truncated
	ShortFrame
	SyncError
	Encrypted
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// RawFrame is the immutable output value emitted by the dispatcher, per
// spec §3/§6. It owns its payload; copy-on-emit is acceptable since frames
// are small (<= MaxFrameSize).
type RawFrame struct {
	Tech         ID
	FrameType    FrameType
	Phase        Phase
	SampleStart  uint64
	SampleEnd    uint64
	TimeStart    float64 // seconds = sample/fs
	TimeEnd      float64
	SymbolRate   int // bits/s
	Flags        Flags
	Data         []byte
	StreamTimeNs int64 // optional wall-clock anchor, 0 if unset
}

// Clone returns a deep copy of the frame's payload so callers holding a
// RawFrame across ring reuse never observe mutation.
func (f RawFrame) Clone() RawFrame {
	out := f
	out.Data = append([]byte(nil), f.Data...)
	return out
}

// FrameStatus tracks the in-flight frame boundary bookkeeping shared by
// every technology, per spec §3.
type FrameStatus struct {
	FrameType  FrameType
	FrameStart uint64
	FrameEnd   uint64
	GuardEnd   uint64
	WaitingEnd uint64
	SymbolRate int
	LastCommand byte

	FrameGuardTime   int // samples
	FrameWaitingTime int // samples
	StartUpGuardTime int // samples
	RequestGuardTime int // samples
}

// Reset clears the frame boundary fields, per the "after emitting a
// RawFrame, FrameStart/End = 0" invariant in spec §3.
func (fs *FrameStatus) Reset() {
	fs.FrameType = NoFrameType
	fs.FrameStart = 0
	fs.FrameEnd = 0
}

// ProtocolStatus holds the adaptive per-technology parameters that persist
// across frames within a session, per spec §3.
type ProtocolStatus struct {
	MaxFrameSize     int
	FrameGuardTime   int
	FrameWaitingTime int
	StartUpGuardTime int
	RequestGuardTime int
}

// DefaultMaxFrameSize is the cap on bytes per frame absent config override.
const DefaultMaxFrameSize = 256

// Detector is the contract every per-technology decoder implements. The
// dispatcher holds one Detector per technology and drives exactly one at a
// time, per spec §4.7/§9 ("tagged variant with a common trait" rather than
// a virtual base-class chain).
type Detector interface {
	// Initialize configures the detector for the given sample rate.
	Initialize(fs float64)

	// Detect runs the search-phase correlators over the ring's most
	// recent samples and reports whether a technology's modulation has
	// locked onto a new frame.
	Detect(r *ring.Ring) bool

	// Decode advances the locked detector by one ring sample, returning
	// a completed RawFrame when a frame boundary is reached. ok is false
	// while the frame is still being assembled.
	Decode(r *ring.Ring) (frame RawFrame, ok bool)

	// Reset clears all per-rate ModulationStatus, returning the detector
	// to the search state (end of frame, lost lock, or truncate).
	Reset()

	// ID reports which technology this detector implements.
	ID() ID
}

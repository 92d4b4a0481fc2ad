package iso7816

import "github.com/cwsl/nfclab/internal/tech"

// protoBuf accumulates the raw bytes of the TPDU/PPS/block currently being
// assembled in stateOperational.
type protoBuf struct {
	data      []byte
	start     uint64
	pps       bool
	t0Pending int // remaining data-phase bytes expected for a T=0 TPDU, -1 = unknown
}

// feedProtocolByte drives the T=0 TPDU / T=1 block / PPS assembler one
// character at a time, per spec §4.6's mapping of ISO/IEC 7816-3's
// higher layers onto the frame model.
func (d *Decoder) feedProtocolByte(clock uint64, b byte) (tech.RawFrame, bool) {
	if d.pb == nil {
		d.pb = &protoBuf{start: clock, t0Pending: -1}
	}
	pb := d.pb

	if len(pb.data) == 0 && b == 0xff {
		pb.pps = true
	}

	pb.data = append(pb.data, b)

	if pb.pps {
		return d.feedPPS(clock, pb)
	}
	if d.protoType == T1 {
		return d.feedT1(clock, pb)
	}
	return d.feedT0(clock, pb)
}

// feedPPS assembles a PPS request/response: PPSS PPS0 [PPS1] [PPS2] [PPS3]
// PCK, per ISO/IEC 7816-3 §9.
func (d *Decoder) feedPPS(clock uint64, pb *protoBuf) (tech.RawFrame, bool) {
	if len(pb.data) < 2 {
		return tech.RawFrame{}, false
	}
	pps0 := pb.data[1]
	want := 3 // PPSS PPS0 PCK
	if pps0&0x10 != 0 {
		want++
	}
	if pps0&0x20 != 0 {
		want++
	}
	if pps0&0x40 != 0 {
		want++
	}
	if len(pb.data) < want {
		return tech.RawFrame{}, false
	}
	return d.finishProto(clock, tech.PpsFrame, pb.data)
}

// feedT0 assembles a single T=0 TPDU: a 5-byte header (CLA INS P1 P2 P3),
// a procedure byte (ACK/NULL/SW1), optional data phase, and a trailing
// SW1 SW2, per ISO/IEC 7816-3 §10.3.
func (d *Decoder) feedT0(clock uint64, pb *protoBuf) (tech.RawFrame, bool) {
	n := len(pb.data)
	if n < 5 {
		return tech.RawFrame{}, false
	}
	ins := pb.data[1]
	p3 := int(pb.data[4])

	if pb.t0Pending < 0 {
		if n == 5 {
			return tech.RawFrame{}, false
		}
		proc := pb.data[5]
		switch {
		case proc == 0x60:
			// NULL byte: strip it and keep waiting for the real
			// procedure byte.
			pb.data = pb.data[:5]
			return tech.RawFrame{}, false
		case proc == ins || proc == ^ins:
			pb.t0Pending = p3
		default:
			// proc is SW1 directly; no data phase (Case 1/2 short-circuit).
			pb.t0Pending = 0
			pb.data = pb.data[:5]
			pb.data = append(pb.data, proc)
		}
		return tech.RawFrame{}, false
	}

	have := n - 6
	if pb.t0Pending >= 0 && have >= pb.t0Pending {
		needed := 6 + pb.t0Pending + 2
		if proc := pb.data[5]; proc != ins && proc != ^ins {
			needed = 7 // data[5] is SW1 itself: header, SW1, SW2
		}
		if n < needed {
			return tech.RawFrame{}, false
		}
		return d.finishProto(clock, tech.TpduFrame, pb.data)
	}
	return tech.RawFrame{}, false
}

// feedT1 assembles one T=1 information/supervisory/receive-ready block:
// NAD PCB LEN INF[LEN] EDC, where EDC is a 1-byte LRC or 2-byte CRC
// depending on the ATR's TC3, per ISO/IEC 7816-3 §11.3.
func (d *Decoder) feedT1(clock uint64, pb *protoBuf) (tech.RawFrame, bool) {
	if len(pb.data) < 3 {
		return tech.RawFrame{}, false
	}
	infoLen := int(pb.data[2])
	edcLen := 1
	if d.errorCode == ErrorCRC {
		edcLen = 2
	}
	needed := 3 + infoLen + edcLen
	if len(pb.data) < needed {
		return tech.RawFrame{}, false
	}
	return d.finishProto(clock, tech.T1BlockFrame, pb.data[:needed])
}

func (d *Decoder) finishProto(clock uint64, ft tech.FrameType, data []byte) (tech.RawFrame, bool) {
	flags := tech.Flags(0)
	if d.errorCode == ErrorLRC && ft == tech.T1BlockFrame {
		if !tech.CheckTrailingLRC(data) {
			flags |= tech.CrcError
		}
	}
	out := tech.RawFrame{
		Tech:        tech.Iso7816,
		FrameType:   ft,
		Phase:       tech.ApplicationFrame,
		SampleStart: d.pb.start,
		SampleEnd:   clock,
		Flags:       flags,
		Data:        append([]byte(nil), data...),
	}
	d.pb = nil
	return out, true
}

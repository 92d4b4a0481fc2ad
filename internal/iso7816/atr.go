package iso7816

// atrComplete reports whether buf holds a fully-formed ATR (TS through the
// optional TCK), walking the TAi/TBi/TCi/TDi interleave defined by
// ISO/IEC 7816-3 §8.2. byteCount is the number of bytes atrComplete has
// consumed from buf to reach that conclusion; buf may be shorter, in which
// case complete is false and the caller keeps collecting characters.
func atrComplete(buf []byte) (complete bool, byteCount int) {
	if len(buf) < 2 {
		return false, 0
	}
	t0 := buf[1]
	idx := 2
	protoHistory := byte(0)
	y := t0 >> 4
	k := int(t0 & 0x0f)

	anyT1 := false
	for y != 0 {
		if y&0x01 != 0 { // TAi present
			if idx >= len(buf) {
				return false, 0
			}
			idx++
		}
		if y&0x02 != 0 { // TBi present
			if idx >= len(buf) {
				return false, 0
			}
			idx++
		}
		if y&0x04 != 0 { // TCi present
			if idx >= len(buf) {
				return false, 0
			}
			idx++
		}
		if y&0x08 != 0 { // TDi present
			if idx >= len(buf) {
				return false, 0
			}
			td := buf[idx]
			idx++
			proto := td & 0x0f
			if proto != 0 {
				anyT1 = true
			}
			protoHistory = proto
			y = td >> 4
			continue
		}
		break
	}
	_ = protoHistory

	idx += k // historical bytes
	if anyT1 {
		idx++ // TCK present whenever any protocol other than T=0 is announced
	}
	if len(buf) < idx {
		return false, 0
	}
	return true, idx
}

// parseATR walks the same interleave as atrComplete, populating the
// decoder's protocol and timing parameters per ISO/IEC 7816-3 §8,
// decided per the Open Questions in DESIGN.md where the original left
// the exact formula ambiguous.
func parseATR(buf []byte, d *Decoder) {
	d.protoType = T0
	d.errorCode = ErrorLRC
	d.maxInfoSize = 32
	d.characterGuardTime = 12 // CGT in ETU, default per 7816-3
	d.blockWaitingTime = 0

	if len(buf) < 2 {
		return
	}
	t0 := buf[1]
	idx := 2
	y := t0 >> 4

	protoSeen := T0
	tdCount := 0
	for y != 0 {
		if y&0x01 != 0 && idx < len(buf) { // TAi
			ta := buf[idx]
			idx++
			if tdCount == 0 {
				// TA1: FI/DI, fixed Fi/Di table per 7816-3 table 7/8.
				d.frequencyFactor = fiTable(ta >> 4)
				d.baudRateFactor = diTable(ta & 0x0f)
			} else if protoSeen == T1 {
				d.maxInfoSize = int(ta)
			}
		}
		if y&0x02 != 0 && idx < len(buf) { // TBi
			idx++ // deprecated Vpp fields, not used
		}
		if y&0x04 != 0 && idx < len(buf) { // TCi
			tc := buf[idx]
			idx++
			if tdCount == 0 {
				d.extraGuardTime = int(tc)
			} else if protoSeen == T1 {
				d.errorCode = ErrorLRC
				if tc&0x01 != 0 {
					d.errorCode = ErrorCRC
				}
			}
		}
		if y&0x08 != 0 && idx < len(buf) { // TDi
			td := buf[idx]
			idx++
			tdCount++
			proto := td & 0x0f
			if proto == 1 {
				protoSeen = T1
				d.protoType = T1
			}
			y = td >> 4
			continue
		}
		break
	}

	d.characterWaitTime = ((1 << 10) + 11) * d.etuSamples // CWT default, WI=10 nominal
	d.blockGuardTime = 22 * d.etuSamples
	d.blockWaitingTime = (1 + (1 << 4)) * d.etuSamples // BWI default 4
}

// fiTable maps the FI nibble to the clock-rate conversion factor, per
// ISO/IEC 7816-3 table 7.
func fiTable(fi byte) int {
	table := [...]int{372, 372, 558, 744, 1116, 1488, 1860, 0, 0, 512, 768, 1024, 1536, 2048, 0, 0}
	if int(fi) < len(table) && table[fi] != 0 {
		return table[fi]
	}
	return 372
}

// diTable maps the DI nibble to the baud-rate adjustment factor, per
// ISO/IEC 7816-3 table 8.
func diTable(di byte) int {
	table := [...]int{0, 1, 2, 4, 8, 16, 32, 0, 12, 20, 0, 0, 0, 0, 0, 0}
	if int(di) < len(table) && table[di] != 0 {
		return table[di]
	}
	return 1
}

package nfca

import "github.com/cwsl/nfclab/internal/tech"

// Command bytes recognised by the NFC-A frame processor, per spec §4.3.
const (
	cmdREQA  = 0x26
	cmdWUPA  = 0x52
	cmdSEL1  = 0x93
	cmdSEL2  = 0x95
	cmdSEL3  = 0x97
	cmdRATS  = 0xE0
	cmdAUTHA = 0x60
	cmdAUTHB = 0x61
)

// fwiMultiplier maps the FWI nibble (0-14) to frame waiting time in carrier
// cycles: FWT = (256 * 16 / fC) * 2^FWI, per ISO/IEC 14443-4. Values are
// precomputed as a multiplier of carrier cycles (2^FWI), applied against
// the 256*16 base by the caller.
func fwiMultiplier(fwi byte) int {
	if fwi > 14 {
		fwi = 14
	}
	return 1 << uint(fwi)
}

// sfgiMultiplier maps the SFGI nibble to the SFGT multiplier: 2^SFGI, with
// SFGI=0 meaning "no startup frame guard time" (multiplier 0).
func sfgiMultiplier(sfgi byte) int {
	if sfgi == 0 {
		return 0
	}
	if sfgi > 14 {
		sfgi = 14
	}
	return 1 << uint(sfgi)
}

// classify determines the Phase and whether the frame sets Encrypted,
// based on the first command byte, per spec §4.3's process() rules.
func classify(firstByte byte, isPoll bool) (tech.Phase, bool) {
	switch {
	case firstByte == cmdREQA || firstByte == cmdWUPA:
		return tech.SenseFrame, false
	case firstByte == cmdSEL1 || firstByte == cmdSEL2 || firstByte == cmdSEL3:
		return tech.SelectionFrame, false
	case firstByte == cmdRATS:
		return tech.SelectionFrame, false
	case firstByte&0xF0 == 0xD0:
		// PPS
		return tech.SelectionFrame, false
	case firstByte == cmdAUTHA || firstByte == cmdAUTHB:
		return tech.ApplicationFrame, true
	default:
		return tech.ApplicationFrame, false
	}
}

// blockKind reports whether a post-RATS byte is an I/R/S-block, per the
// ISO/IEC 14443-4 PCB masks used in spec §4.3.
type blockKind int

const (
	blockNone blockKind = iota
	blockI
	blockR
	blockS
)

func classifyBlock(pcb byte) blockKind {
	switch {
	case pcb&0xC0 == 0x00:
		return blockI
	case pcb&0xE0 == 0xA0:
		return blockR
	case pcb&0xC0 == 0xC0:
		return blockS
	default:
		return blockNone
	}
}

// parseRATSResponse extracts SFGI/FWI from an ATS's TB byte, if present,
// updating adaptive protocol parameters per spec §4.3. ats is the full ATS
// payload (TL, T0, [TA], [TB], [TC], historical bytes).
func parseRATSResponse(ats []byte, proto *tech.ProtocolStatus, fsCycles func(mult int) int) {
	if len(ats) < 2 {
		return
	}
	tl := ats[0]
	t0 := ats[1]
	idx := 2
	hasTA := t0&0x10 != 0
	hasTB := t0&0x20 != 0
	hasTC := t0&0x40 != 0
	fsci := t0 & 0x0F

	if hasTA {
		idx++
	}
	if hasTB && idx < len(ats) && idx < int(tl) {
		tb := ats[idx]
		fwi := (tb >> 4) & 0x0F
		sfgi := tb & 0x0F
		proto.FrameWaitingTime = fsCycles(256 * 16 * fwiMultiplier(fwi))
		proto.StartUpGuardTime = fsCycles(256 * 16 * sfgiMultiplier(sfgi))
		idx++
	}
	if hasTC {
		idx++
	}
	proto.MaxFrameSize = fsciToBytes(fsci)
}

// fsciToBytes maps the FSCI nibble to a max frame size in bytes, per
// ISO/IEC 14443-4 table 8.
func fsciToBytes(fsci byte) int {
	sizes := [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256}
	if int(fsci) < len(sizes) {
		return sizes[fsci]
	}
	return tech.DefaultMaxFrameSize
}

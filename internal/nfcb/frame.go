package nfcb

import "github.com/cwsl/nfclab/internal/tech"

const (
	cmdREQB    = 0x05
	cmdATTRIB  = 0x1D
)

// fdsTable maps FDSI (0-8) to the max frame size in bytes, per ISO/IEC
// 14443-3 Type B.
var fdsTable = [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256}

func fdsBytes(fdsi byte) int {
	if int(fdsi) < len(fdsTable) {
		return fdsTable[fdsi]
	}
	return tech.DefaultMaxFrameSize
}

// classify tags the phase for an NFC-B frame. Unlike NFC-A there is no
// dedicated sense tag: REQB/WUPB and ATTRIB are both application-layer
// activation, per spec §8 scenario S4.
func classify(firstByte byte) tech.Phase {
	return tech.ApplicationFrame
}

// parseREQBResponse extracts FDSI/FWI from a REQB/WUPB response (ATQB),
// updating adaptive protocol parameters, per spec §4.4.
func parseREQBResponse(atqb []byte, proto *tech.ProtocolStatus, fwiToSamples func(fwi byte) int) {
	if len(atqb) < 12 {
		return
	}
	protocolInfo := atqb[10]
	fdsi := protocolInfo >> 4
	fwi := atqb[11] >> 4
	proto.MaxFrameSize = fdsBytes(fdsi)
	proto.FrameWaitingTime = fwiToSamples(fwi)
}

// parseATTRIB extracts the FDSI max-frame-size override from an ATTRIB
// command. TR0I is not read, and fsciCyclesToSamples is not used.
func parseATTRIB(attrib []byte, proto *tech.ProtocolStatus, fsciCyclesToSamples func(mult int) int) {
	if len(attrib) < 5 {
		return
	}
	fdsi := attrib[4] >> 4
	proto.MaxFrameSize = fdsBytes(fdsi)
}

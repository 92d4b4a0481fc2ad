package tech

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCheckTrailingCRC16RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "payload")
		crc := NfcACRC(payload)
		frame := append(append([]byte(nil), payload...), byte(crc), byte(crc>>8))
		assert.True(t, CheckTrailingCRC16(frame, NfcACRC))
	})
}

func TestCheckTrailingCRC16DetectsCorruption(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "payload")
		crc := NfcBCRC(payload)
		frame := append(append([]byte(nil), payload...), byte(crc), byte(crc>>8))
		idx := rapid.IntRange(0, len(frame)-1).Draw(t, "idx")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		frame[idx] ^= 1 << uint(bit)
		assert.False(t, CheckTrailingCRC16(frame, NfcBCRC))
	})
}

func TestNfcFCRCKnownVector(t *testing.T) {
	// CRC over an empty payload with seed 0, non-reflected, is 0.
	assert.Equal(t, uint16(0), NfcFCRC(nil))
}

func TestLRCRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "payload")
		lrc := LRC(payload)
		frame := append(append([]byte(nil), payload...), lrc)
		assert.True(t, CheckTrailingLRC(frame))
	})
}

func TestOddParityLaw(t *testing.T) {
	// For every byte, popcount(byte) + OddParity(byte) must be odd, per
	// spec §8 property 4.
	for b := 0; b < 256; b++ {
		ones := 0
		for i := 0; i < 8; i++ {
			if byte(b)&(1<<uint(i)) != 0 {
				ones++
			}
		}
		p := OddParity(byte(b))
		assert.Equal(t, 1, (ones+int(p))%2, "byte %08b", b)
	}
}

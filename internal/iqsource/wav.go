// Package iqsource supplies dispatch.Source implementations: a WAV-file
// reader for offline capture files and an RTP/multicast reader for live
// captures, grounded on the WAVWriter/WAVHeader layout and the RTP socket
// plumbing the same codebase uses for its own audio pipeline.
package iqsource

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavHeader mirrors the on-disk layout WAVWriter produces: a stereo PCM16
// file where the left channel is I and the right channel is Q.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WAVSource reads interleaved I/Q samples from a 2-channel PCM16 WAV file.
type WAVSource struct {
	file       *os.File
	sampleRate float64
	remaining  uint32
	scale      float64
}

// OpenWAV opens an I/Q capture file written as a stereo 16-bit PCM WAV
// (left = I, right = Q).
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var h wavHeader
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		f.Close()
		return nil, fmt.Errorf("iqsource: reading WAV header: %w", err)
	}
	if h.NumChannels != 2 || h.BitsPerSample != 16 {
		f.Close()
		return nil, fmt.Errorf("iqsource: expected 2-channel 16-bit PCM, got %d channel(s) at %d bits", h.NumChannels, h.BitsPerSample)
	}
	return &WAVSource{
		file:       f,
		sampleRate: float64(h.SampleRate),
		remaining:  h.Subchunk2Size,
		scale:      1.0 / 32768.0,
	}, nil
}

// SampleRate returns the WAV file's declared sample rate in Hz.
func (s *WAVSource) SampleRate() float64 { return s.sampleRate }

// Next reads one I/Q sample pair, scaled to [-1, 1), per spec §4.1.
func (s *WAVSource) Next() (i, q float64, ok bool) {
	if s.remaining < 4 {
		return 0, 0, false
	}
	var buf [4]byte
	if _, err := io.ReadFull(s.file, buf[:]); err != nil {
		return 0, 0, false
	}
	s.remaining -= 4
	iRaw := int16(binary.LittleEndian.Uint16(buf[0:2]))
	qRaw := int16(binary.LittleEndian.Uint16(buf[2:4]))
	return float64(iRaw) * s.scale, float64(qRaw) * s.scale, true
}

// Close releases the underlying file handle.
func (s *WAVSource) Close() error { return s.file.Close() }

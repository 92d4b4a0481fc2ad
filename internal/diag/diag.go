// Package diag computes run-summary statistics over emitted frames, used
// for the decoder's end-of-run log line.
package diag

import "gonum.org/v1/gonum/stat"

// Summary accumulates per-frame lock-duration and length samples and
// reports their distribution once the run ends.
type Summary struct {
	lockDurations []float64
	lengths       []float64
}

// Observe records one emitted frame's lock duration (seconds) and length
// (bytes).
func (s *Summary) Observe(lockSeconds float64, length int) {
	s.lockDurations = append(s.lockDurations, lockSeconds)
	s.lengths = append(s.lengths, float64(length))
}

// Report is the summary statistics for one decode run.
type Report struct {
	Frames             int
	MeanLockSeconds    float64
	StdDevLockSeconds  float64
	MeanFrameLength    float64
	StdDevFrameLength  float64
}

// Report computes the mean and standard deviation of the accumulated
// samples using gonum/stat, returning a zero-value Report if no frames
// were observed.
func (s *Summary) Report() Report {
	n := len(s.lockDurations)
	if n == 0 {
		return Report{}
	}
	meanLock, stdLock := meanStdDev(s.lockDurations)
	meanLen, stdLen := meanStdDev(s.lengths)
	return Report{
		Frames:            n,
		MeanLockSeconds:   meanLock,
		StdDevLockSeconds: stdLock,
		MeanFrameLength:   meanLen,
		StdDevFrameLength: stdLen,
	}
}

func meanStdDev(xs []float64) (mean, stdDev float64) {
	mean = stat.Mean(xs, nil)
	if len(xs) < 2 {
		return mean, 0
	}
	stdDev = stat.StdDev(xs, nil)
	return mean, stdDev
}

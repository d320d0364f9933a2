// Package progress converts running byte counts into percentages and
// provides a counting reader that reports them as a stream is consumed.
// No smoothing and no rate computation.
package progress

import "io"

// Percent converts received/total bytes into a 0 to 100 value. When the
// total is unknown (zero or negative) it stays at 0 until the caller
// forces completion.
func Percent(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(received) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Reader counts bytes as they pass through and reports the running total
// to OnProgress after every read.
type Reader struct {
	R          io.Reader
	OnProgress func(received int64)

	received int64
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	if n > 0 {
		r.received += int64(n)
		if r.OnProgress != nil {
			r.OnProgress(r.received)
		}
	}
	return n, err
}

// Received returns the number of bytes read so far.
func (r *Reader) Received() int64 {
	return r.received
}

package audio

import "sync"

// CaptureStream is a fixed-capacity circular buffer of captured samples.
//
// The writer (a device callback) appends through Write; the reader (the
// audio polling task) consumes fixed-length windows through ReadWindow.
// Positions are absolute sample counts since the last Reset, so the read
// cursor only ever moves forward. When the writer laps a slow reader, the
// cursor is advanced to the oldest sample still retained and the overrun is
// counted.
type CaptureStream struct {
	mu       sync.Mutex
	buf      []float32
	written  uint64
	cursor   uint64
	overruns uint64
}

// NewCaptureStream returns a stream that retains the most recent capacity
// samples. capacity must be positive.
func NewCaptureStream(capacity int) *CaptureStream {
	if capacity <= 0 {
		capacity = 1
	}
	return &CaptureStream{buf: make([]float32, capacity)}
}

// Capacity returns the number of samples the stream retains.
func (s *CaptureStream) Capacity() int {
	return len(s.buf)
}

// Write appends samples, overwriting the oldest retained samples when full.
func (s *CaptureStream) Write(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := uint64(len(s.buf))
	// Only the tail can survive a write larger than the buffer.
	if uint64(len(samples)) > n {
		skip := uint64(len(samples)) - n
		s.written += skip
		samples = samples[skip:]
	}
	for _, v := range samples {
		s.buf[s.written%n] = v
		s.written++
	}
	if s.written-s.cursor > n {
		s.cursor = s.written - n
		s.overruns++
	}
}

// Cursor returns the absolute position of the next sample ReadWindow will
// return.
func (s *CaptureStream) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Written returns the absolute number of samples written since the last Reset.
func (s *CaptureStream) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Available returns the number of unread samples.
func (s *CaptureStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.written - s.cursor)
}

// Overruns returns how many times the writer overtook the reader.
func (s *CaptureStream) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}

// ReadWindow returns the next n unread samples and advances the cursor by n.
// If fewer than n samples are available it returns nil, false and leaves the
// cursor untouched.
func (s *CaptureStream) ReadWindow(n int) ([]float32, bool) {
	if n <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written-s.cursor < uint64(n) || n > len(s.buf) {
		return nil, false
	}
	out := make([]float32, n)
	size := uint64(len(s.buf))
	start := s.cursor % size
	k := copy(out, s.buf[start:])
	if k < n {
		copy(out[k:], s.buf[:n-k])
	}
	s.cursor += uint64(n)
	return out, true
}

// Reset discards all buffered samples and rewinds both positions to zero.
func (s *CaptureStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.written = 0
	s.cursor = 0
}

package launcher

import "sync"

const outputBufferSize = 10 * 1024 // 10KB circular buffer

// CircularBuffer keeps the most recent bytes written to it.
type CircularBuffer struct {
	data []byte
	size int
	mu   sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer
func NewCircularBuffer(size int) *CircularBuffer {
	return &CircularBuffer{
		data: make([]byte, 0, size),
		size: size,
	}
}

// Write implements io.Writer
func (cb *CircularBuffer) Write(p []byte) (n int, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case len(p) >= cb.size:
		cb.data = append(cb.data[:0], p[len(p)-cb.size:]...)
	case len(cb.data)+len(p) > cb.size:
		excess := len(cb.data) + len(p) - cb.size
		cb.data = append(cb.data[:0], cb.data[excess:]...)
		cb.data = append(cb.data, p...)
	default:
		cb.data = append(cb.data, p...)
	}

	return len(p), nil
}

// Bytes returns a copy of the buffer contents
func (cb *CircularBuffer) Bytes() []byte {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	result := make([]byte, len(cb.data))
	copy(result, cb.data)
	return result
}

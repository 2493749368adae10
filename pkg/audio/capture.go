package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Capture binds a [Device] to a [CaptureStream]. It is the only component
// that starts and stops the microphone, and every Start begins from an empty
// stream so no stale cursor survives a suspension.
type Capture struct {
	dev    Device
	stream *CaptureStream

	mu      sync.Mutex
	running bool

	// gen invalidates callbacks from a previous Start that the driver may
	// still deliver while stopping.
	gen atomic.Uint64
}

// NewCapture returns a stopped Capture.
func NewCapture(dev Device, stream *CaptureStream) *Capture {
	return &Capture{dev: dev, stream: stream}
}

// Stream returns the underlying circular buffer.
func (c *Capture) Stream() *CaptureStream {
	return c.stream
}

// Start clears the stream and starts the device. Starting a running Capture
// is a no-op.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.stream.Reset()
	gen := c.gen.Add(1)
	err := c.dev.Start(func(samples []float32) {
		if c.gen.Load() != gen {
			return
		}
		c.stream.Write(samples)
	})
	if err != nil {
		c.gen.Add(1)
		return fmt.Errorf("audio: start capture: %w", err)
	}
	c.running = true
	return nil
}

// Stop stops the device and clears the stream. Stopping a stopped Capture
// only clears the stream.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen.Add(1)
	var err error
	if c.running {
		if stopErr := c.dev.Stop(); stopErr != nil {
			err = fmt.Errorf("audio: stop capture: %w", stopErr)
		}
		c.running = false
	}
	c.stream.Reset()
	return err
}

// Running reports whether the device is currently capturing.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Close stops capture and releases the device.
func (c *Capture) Close() error {
	stopErr := c.Stop()
	if err := c.dev.Close(); err != nil {
		return fmt.Errorf("audio: close device: %w", err)
	}
	return stopErr
}

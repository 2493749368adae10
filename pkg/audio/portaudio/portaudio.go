// Package portaudio implements [audio.Device] and [audio.Player] on top of
// the PortAudio default input and output devices.
//
// [Initialize] must be called once before any stream is opened and
// [Terminate] once after every Input and Output has been closed.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/murmur/pkg/audio"
)

const (
	defaultSampleRate      = 16000
	defaultFramesPerBuffer = 800 // 50 ms at 16 kHz
)

// Compile-time interface assertions.
var (
	_ audio.Device = (*Input)(nil)
	_ audio.Player = (*Output)(nil)
)

// Initialize initialises the PortAudio library.
func Initialize() error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error {
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// Option is a functional option shared by Input and Output.
type Option func(*options)

type options struct {
	sampleRate      int
	framesPerBuffer int
}

// WithSampleRate sets the stream sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(o *options) { o.sampleRate = rate }
}

// WithFramesPerBuffer sets the PortAudio buffer size in frames. Defaults to
// 800 (50 ms at 16 kHz).
func WithFramesPerBuffer(n int) Option {
	return func(o *options) { o.framesPerBuffer = n }
}

func buildOptions(opts []Option) (options, error) {
	o := options{sampleRate: defaultSampleRate, framesPerBuffer: defaultFramesPerBuffer}
	for _, fn := range opts {
		fn(&o)
	}
	if o.sampleRate <= 0 {
		return o, errors.New("portaudio: sample rate must be positive")
	}
	if o.framesPerBuffer <= 0 {
		return o, errors.New("portaudio: frames per buffer must be positive")
	}
	return o, nil
}

// ── Input ─────────────────────────────────────────────────────────────────────

// Input captures mono audio from the default input device using the
// PortAudio callback API.
type Input struct {
	opts options

	mu     sync.Mutex
	stream *pa.Stream
}

// NewInput returns an Input. No device is opened until Start.
func NewInput(opts ...Option) (*Input, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Input{opts: o}, nil
}

// Start opens and starts the default input stream. Each PortAudio buffer is
// copied before it is handed to onSamples.
func (in *Input) Start(onSamples func([]float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream != nil {
		return nil
	}

	stream, err := pa.OpenDefaultStream(1, 0, float64(in.opts.sampleRate), in.opts.framesPerBuffer,
		func(buf []float32) {
			cp := make([]float32, len(buf))
			copy(cp, buf)
			onSamples(cp)
		})
	if err != nil {
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	in.stream = stream
	return nil
}

// Stop stops and closes the input stream. PortAudio guarantees the callback
// is not running once Stop returns.
func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	stream := in.stream
	in.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop input stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close input stream: %w", err))
	}
	return errors.Join(errs...)
}

// Close stops the input stream if it is running.
func (in *Input) Close() error {
	return in.Stop()
}

// ── Output ────────────────────────────────────────────────────────────────────

// Output plays mono audio on the default output device using the PortAudio
// blocking API. A stream is opened per Play call so the device is released
// while idle.
type Output struct {
	opts options
	mu   sync.Mutex
}

// NewOutput returns an Output.
func NewOutput(opts ...Option) (*Output, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Output{opts: o}, nil
}

// Play resamples samples to the output rate and writes them buffer by
// buffer, checking ctx between buffers.
func (out *Output) Play(ctx context.Context, samples []float32, sampleRate int) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	samples = audio.Resample(samples, sampleRate, out.opts.sampleRate)
	buf := make([]float32, out.opts.framesPerBuffer)

	stream, err := pa.OpenDefaultStream(0, 1, float64(out.opts.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write output stream: %w", err)
		}
	}
	return nil
}

// Close is a no-op; streams are closed at the end of each Play.
func (out *Output) Close() error {
	return nil
}

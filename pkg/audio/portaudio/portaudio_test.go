package portaudio_test

import (
	"os"
	"testing"

	"github.com/MrWong99/murmur/pkg/audio/portaudio"
)

func TestNewInput_InvalidOptions(t *testing.T) {
	t.Parallel()

	if _, err := portaudio.NewInput(portaudio.WithSampleRate(0)); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := portaudio.NewInput(portaudio.WithFramesPerBuffer(-1)); err == nil {
		t.Error("expected error for negative frames per buffer")
	}
}

func TestNewOutput_Defaults(t *testing.T) {
	t.Parallel()

	out, err := portaudio.NewOutput()
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestInput_StopWithoutStart(t *testing.T) {
	t.Parallel()

	in, err := portaudio.NewInput()
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	if err := in.Stop(); err != nil {
		t.Errorf("Stop on idle input: %v", err)
	}
}

// TestInput_Hardware opens the real default microphone. It only runs when
// MURMUR_TEST_AUDIO_DEVICE is set because CI machines have no sound card.
func TestInput_Hardware(t *testing.T) {
	if os.Getenv("MURMUR_TEST_AUDIO_DEVICE") == "" {
		t.Skip("MURMUR_TEST_AUDIO_DEVICE not set; skipping hardware test")
	}
	if err := portaudio.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = portaudio.Terminate() })

	in, err := portaudio.NewInput()
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	got := make(chan int, 1)
	if err := in.Start(func(s []float32) {
		select {
		case got <- len(s):
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Close()

	if n := <-got; n == 0 {
		t.Error("received empty buffer from device")
	}
}

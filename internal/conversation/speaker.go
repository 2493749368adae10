package conversation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// PlaybackGuard is the part of *playback.Guard the speaker needs.
type PlaybackGuard interface {
	BeginPlayback(estimate time.Duration)
	PlaybackFinished()
}

// SpeakerConfig holds the dependencies of a [Speaker].
type SpeakerConfig struct {
	TTS    tts.Provider
	Player audio.Player
	Guard  PlaybackGuard

	// Path is the transient file synthesized audio is written to. It is
	// overwritten by every synthesis.
	Path string

	// Voice and Format are passed through to the TTS provider.
	Voice  string
	Format tts.Format

	// Metrics is optional.
	Metrics *observe.Metrics

	// Clock times the synthesis stage. Nil uses the real clock.
	Clock clockwork.Clock
}

// Speaker turns text into audible speech. Speak calls are serialised so a
// reminder and a turn reply never overlap on the speaker or the guard.
type Speaker struct {
	cfg SpeakerConfig
	mu  sync.Mutex
}

// NewSpeaker validates cfg and returns a Speaker.
func NewSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	if cfg.TTS == nil || cfg.Player == nil || cfg.Guard == nil {
		return nil, fmt.Errorf("conversation: speaker needs a TTS provider, a player and a playback guard")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("conversation: speaker needs a speech file path")
	}
	return &Speaker{cfg: cfg}, nil
}

// Speak synthesizes text, writes it to the transient speech file, suspends
// capture for the estimated duration and plays it. The guard is told when
// playback really ended so the cooldown is measured from there.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sctx, done := observe.Stage(ctx, s.cfg.Clock, observe.StageTTS, s.cfg.Metrics)
	synth, err := s.cfg.TTS.Synthesize(sctx, tts.Request{Text: text, Voice: s.cfg.Voice, Format: s.cfg.Format})
	done(err)
	if err != nil {
		return fmt.Errorf("conversation: synthesize: %w", err)
	}

	// The file always holds a playable WAV, whatever the provider returned.
	data := synth.Data
	if synth.Format != tts.FormatWAV {
		raw, err := synth.Decode()
		if err != nil {
			return fmt.Errorf("conversation: decode speech: %w", err)
		}
		data = wav.Encode(raw.Samples, raw.SampleRate, raw.Channels)
	}
	if err := os.WriteFile(s.cfg.Path, data, 0o600); err != nil {
		return fmt.Errorf("conversation: write speech file: %w", err)
	}
	stored, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("conversation: read speech file: %w", err)
	}
	clip, err := wav.Decode(stored)
	if err != nil {
		return fmt.Errorf("conversation: decode speech file: %w", err)
	}

	s.cfg.Guard.BeginPlayback(clip.Duration())
	err = s.cfg.Player.Play(ctx, audio.Downmix(clip.Samples, clip.Channels), clip.SampleRate)
	s.cfg.Guard.PlaybackFinished()
	if err != nil {
		return fmt.Errorf("conversation: play: %w", err)
	}
	return nil
}

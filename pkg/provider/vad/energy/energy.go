// Package energy implements a VAD engine that classifies frames by their RMS
// amplitude.
//
// A session is either idle or in speech. A voiced frame (RMS at or above the
// threshold) opens a segment. While a segment is open every frame is
// buffered; voiced frames add to the speech counter and zero the silence
// counter, unvoiced frames add to the silence counter only. Once the silence
// counter reaches SilenceMs the segment closes and is emitted if the speech
// counter reached MinSpeechMs. Pauses shorter than SilenceMs therefore merge
// into one utterance.
package energy

import (
	"math"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine creates energy-threshold VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns an idle session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewSession(cfg), nil
}

// Session is a single energy VAD stream. It is not safe for concurrent use.
type Session struct {
	cfg vad.Config

	inSpeech  bool
	buf       []float32
	speechMs  int
	silenceMs int
}

// NewSession returns an idle session. cfg is not validated.
func NewSession(cfg vad.Config) *Session {
	return &Session{cfg: cfg}
}

// Config returns the session configuration.
func (s *Session) Config() vad.Config {
	return s.cfg
}

// InSpeech reports whether a segment is open.
func (s *Session) InSpeech() bool {
	return s.inSpeech
}

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(frame []float32) vad.Event {
	rms := RMS(frame)
	voiced := rms >= s.cfg.Threshold && len(frame) > 0

	if !s.inSpeech {
		if !voiced {
			return vad.Event{Type: vad.Silence, RMS: rms}
		}
		s.inSpeech = true
		s.buf = append(make([]float32, 0, len(frame)*8), frame...)
		s.speechMs = s.cfg.WindowMs
		s.silenceMs = 0
		return vad.Event{Type: vad.SpeechStart, RMS: rms, SpeechMs: s.speechMs}
	}

	s.buf = append(s.buf, frame...)
	if voiced {
		s.speechMs += s.cfg.WindowMs
		s.silenceMs = 0
		return vad.Event{Type: vad.SpeechContinue, RMS: rms, SpeechMs: s.speechMs}
	}

	s.silenceMs += s.cfg.WindowMs
	if s.silenceMs < s.cfg.SilenceMs {
		return vad.Event{Type: vad.SpeechContinue, RMS: rms, SpeechMs: s.speechMs}
	}

	speechMs := s.speechMs
	utterance := s.buf
	s.clear()
	if speechMs < s.cfg.MinSpeechMs {
		return vad.Event{Type: vad.FalseTrigger, RMS: rms, SpeechMs: speechMs}
	}
	return vad.Event{Type: vad.SpeechEnd, RMS: rms, SpeechMs: speechMs, Utterance: utterance}
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.clear()
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.clear()
	return nil
}

func (s *Session) clear() {
	s.inSpeech = false
	s.buf = nil
	s.speechMs = 0
	s.silenceMs = 0
}

// RMS returns the root-mean-square amplitude of frame, or 0 for an empty
// frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// Package openai speaks replies through the OpenAI speech endpoint
// (/audio/speech). Audio is always requested as WAV, so every payload
// carries its own sample rate.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/tts"
)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = "tts-1"

	// DefaultVoice is used when neither the request nor the provider names
	// a voice.
	DefaultVoice = "alloy"
)

// catalogue is the endpoint's fixed set of voices.
var catalogue = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithVoice sets the voice used when a request names none.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSpeed sets the playback speed, 0.25 to 4. Zero keeps the endpoint
// default of 1.
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	model   string
	voice   string
	speed   float64
	baseURL string
	timeout time.Duration
}

// New returns a Provider for apiKey. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{model: model, voice: DefaultVoice}
	for _, o := range opts {
		o(p)
	}
	if p.speed != 0 && (p.speed < 0.25 || p.speed > 4) {
		return nil, fmt.Errorf("openai: speed %.2f is out of range [0.25, 4]", p.speed)
	}

	// Breakers own failure handling; the SDK must not retry behind them.
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if req.Text == "" {
		return tts.Audio{}, errors.New("openai: text must not be empty")
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voiceFor(req)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if p.speed != 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai: read speech body: %w", err)
	}
	if err := tts.CheckPayload(data); err != nil {
		return tts.Audio{}, fmt.Errorf("openai: %w", err)
	}

	audio := tts.Audio{Data: data, Format: tts.FormatWAV}
	if clip, err := wav.Decode(data); err == nil {
		audio.SampleRate = clip.SampleRate
	}
	return audio, nil
}

func (p *Provider) voiceFor(req tts.Request) string {
	if req.Voice != "" {
		return req.Voice
	}
	return p.voice
}

// ListVoices returns the endpoint's fixed voice catalogue.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(catalogue))
	for i, v := range catalogue {
		out[i] = tts.Voice{ID: v, Name: v, Provider: "openai"}
	}
	return out, nil
}

// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (/audio/transcriptions).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = string(oai.AudioModelWhisper1)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

type config struct {
	baseURL  string
	language string
	prompt   string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any server speaking
// the OpenAI transcription protocol can be targeted this way.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt sets text that biases recognition toward its vocabulary, such
// as names the user is likely to say.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI STT Provider. An empty model selects
// DefaultModel.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The caller decides about retries; a failed turn is never replayed.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Transcribe implements stt.Provider. API failures carry the HTTP status in
// the message.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, errors.New("openai: audio must not be empty")
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(req.Audio), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if p.prompt != "" {
		params.Prompt = oai.String(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return stt.Transcript{}, fmt.Errorf("openai: transcription: HTTP %d: %w", apiErr.StatusCode, err)
		}
		return stt.Transcript{}, fmt.Errorf("openai: transcription: %w", err)
	}

	t, err := stt.Finish(resp.Text)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: %w", err)
	}
	t.Language = lang
	if clip, err := wav.Decode(req.Audio); err == nil {
		t.Duration = clip.Duration()
	}
	return t, nil
}

// Package elevenlabs speaks replies through the ElevenLabs stream-input
// WebSocket API.
//
// One Synthesize call is one socket: the opening frame carries the key and
// voice settings, the reply text follows with a flush, and an empty text
// frame ends the input. Base64 PCM chunks are gathered until the server
// marks the stream final or closes normally.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/MrWong99/murmur/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultHTTPBase  = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the model ID. Default: "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the raw PCM output format ("pcm_16000",
// "pcm_24000", ...). Default: "pcm_16000".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithVoice sets the voice ID used when a request names none.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voice = voiceID }
}

// WithVoiceSettings overrides stability and similarity boost, both in [0,1].
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) { p.settings = VoiceSettings{Stability: stability, SimilarityBoost: similarity} }
}

// WithBaseURL overrides the WebSocket base URL (ws or wss).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.wsBase = u }
}

// WithAPIBaseURL overrides the REST base URL used by ListVoices.
func WithAPIBaseURL(u string) Option {
	return func(p *Provider) { p.httpBase = u }
}

// VoiceSettings is the voice_settings object of the opening frame.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Provider implements tts.Provider. It holds no connection between calls.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	sampleRate   int
	voice        string
	settings     VoiceSettings
	wsBase       string
	httpBase     string
	httpClient   *http.Client
}

// New returns a Provider for apiKey. The output format must be raw PCM.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		settings:     VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		wsBase:       defaultWSBase,
		httpBase:     defaultHTTPBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, ok := tts.ParsePCMFormat(p.outputFormat)
	if !ok {
		return nil, fmt.Errorf("elevenlabs: output format %q is not a pcm_<rate> format", p.outputFormat)
	}
	p.sampleRate = rate
	return p, nil
}

// frame is one client message of the stream-input protocol.
type frame struct {
	Text          string         `json:"text"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// chunk is one server message.
type chunk struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. The result is always FormatPCM16 at
// the configured output rate.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	switch {
	case voice == "":
		return tts.Audio{}, errors.New("elevenlabs: voice must not be empty")
	case req.Text == "":
		return tts.Audio{}, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := p.send(ctx, conn, req.Text); err != nil {
		return tts.Audio{}, err
	}
	pcm, err := receive(ctx, conn)
	if err != nil {
		return tts.Audio{}, err
	}
	// Chunks arrive unwrapped from JSON, so only emptiness is checked here.
	if len(pcm) == 0 {
		return tts.Audio{}, fmt.Errorf("elevenlabs: %w", tts.ErrEmptyAudio)
	}
	return tts.Audio{Data: pcm, Format: tts.FormatPCM16, SampleRate: p.sampleRate}, nil
}

// send writes the opening frame, the text and the end-of-input frame. The
// opening text must be non-empty, hence the single space.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, text string) error {
	settings := p.settings
	frames := []frame{
		{Text: " ", VoiceSettings: &settings, APIKey: p.apiKey},
		{Text: text + " ", Flush: true},
		{},
	}
	for i, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("elevenlabs: encode frame %d: %w", i, err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("elevenlabs: send frame %d: %w", i, err)
		}
	}
	return nil
}

// receive gathers PCM until the final marker or a normal close.
func receive(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return pcm.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}

		var c chunk
		if err := json.Unmarshal(msg, &c); err != nil {
			return nil, fmt.Errorf("elevenlabs: decode message: %w", err)
		}
		if c.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %w: %s: %s", tts.ErrErrorBody, c.Error, c.Message)
		}
		if c.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(c.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio chunk: %w", err)
			}
			pcm.Write(raw)
		}
		if c.IsFinal {
			return pcm.Bytes(), nil
		}
	}
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

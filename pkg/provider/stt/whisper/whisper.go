// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server, which answers
// POST /inference (a multipart WAV upload) with a JSON object carrying a
// "text" field, or an "error" field when inference failed. NativeProvider
// runs the same model in-process through the whisper.cpp CGO bindings.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	t, err := p.Transcribe(ctx, stt.Request{Audio: wavBytes})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxErrorBody caps how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the model name sent with each request ("base.en",
// "small", ...). Empty leaves the server's loaded model in use.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default BCP-47 language. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout sets the request timeout of the default HTTP client. Ignored
// together with [WithHTTPClient].
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements stt.Provider against a whisper-server.
type Provider struct {
	endpoint   string
	model      string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a Provider for the server at serverURL
// ("http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint: strings.TrimSuffix(serverURL, "/") + "/inference",
		language: defaultLanguage,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.timeout}
	}
	return p, nil
}

// Transcribe uploads req.Audio and returns the recognised text. The
// transcript's Duration is read from the WAV header when it parses.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, errors.New("whisper: audio must not be empty")
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	body, contentType, err := p.form(req.Audio, lang)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: build form: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	text, err := decodeInference(resp.Body)
	if err != nil {
		return stt.Transcript{}, err
	}

	t, err := stt.Finish(text)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	t.Language = lang
	if clip, err := wav.Decode(req.Audio); err == nil {
		t.Duration = clip.Duration()
	}
	return t, nil
}

// form encodes the multipart body of an /inference request.
func (p *Provider) form(audio []byte, lang string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{{"response_format", "json"}}
	if lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// decodeInference extracts the text of an /inference response. An absent
// or null text yields the empty string; a reported error fails.
func decodeInference(r io.Reader) (string, error) {
	var result struct {
		Text  *string `json:"text"`
		Error string  `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: server error: %s", result.Error)
	}
	if result.Text == nil {
		return "", nil
	}
	return *result.Text, nil
}

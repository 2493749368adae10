// NativeProvider runs whisper.cpp in-process through its CGO bindings. The
// static library (libwhisper.a) and whisper.h must be reachable through
// LIBRARY_PATH and C_INCLUDE_PATH when building.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// modelSampleRate is the only input rate whisper models accept.
const modelSampleRate = 16000

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider on a whisper model loaded once at
// construction. Every transcription gets its own inference context; at most
// [WithNativeConcurrency] of them run at a time.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	slots    *semaphore.Weighted

	closeOnce sync.Once
	closeErr  error
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*nativeOptions)

type nativeOptions struct {
	language    string
	threads     uint
	concurrency int64
}

// WithNativeLanguage sets the default BCP-47 language ("en", "de", ...) or
// "auto" for detection. Default: "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(o *nativeOptions) { o.language = lang }
}

// WithNativeThreads sets the CPU threads per inference. Zero keeps the
// library default.
func WithNativeThreads(n uint) NativeOption {
	return func(o *nativeOptions) { o.threads = n }
}

// WithNativeConcurrency bounds simultaneous inferences. Default: 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(o *nativeOptions) {
		if n > 0 {
			o.concurrency = int64(n)
		}
	}
}

// NewNative loads the model at modelPath. The caller must Close the
// provider to free it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	o := nativeOptions{language: defaultLanguage, concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{
		model:    model,
		language: o.language,
		threads:  o.threads,
		slots:    semaphore.NewWeighted(o.concurrency),
	}, nil
}

// Close releases the model. Safe to call more than once.
func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() { p.closeErr = p.model.Close() })
	return p.closeErr
}

// Transcribe decodes the WAV in req.Audio, downmixes and resamples it to
// 16 kHz mono and runs inference. Cancelling ctx aborts a queued request
// and stops a running one before its encoder starts.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	clip, err := wav.Decode(req.Audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: wait for inference slot: %w", err)
	}
	text, err := p.infer(ctx, audio.ToMono(clip.Samples, clip.Channels, clip.SampleRate, modelSampleRate), lang)
	p.slots.Release(1)
	if err != nil {
		return stt.Transcript{}, err
	}

	t, err := stt.Finish(text)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	t.Language = lang
	t.Duration = clip.Duration()
	return t, nil
}

// infer runs one inference context over samples and joins the segment
// texts. Contexts are not safe for concurrent use; the model is.
func (p *NativeProvider) infer(ctx context.Context, samples []float32, lang string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language not supported by model, using its default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	var parts []string
	keepGoing := func() bool { return ctx.Err() == nil }
	onSegment := func(s whisperlib.Segment) {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if err := wctx.Process(samples, keepGoing, onSegment, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("whisper: %w", ctxErr)
		}
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return strings.Join(parts, " "), nil
}

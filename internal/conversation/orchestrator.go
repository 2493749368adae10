// Package conversation runs the turn-taking loop of the assistant: an
// utterance is transcribed, answered, interpreted against the trigger
// grammar, shown and spoken.
//
// At most one turn is in flight at a time. [Orchestrator.Submit] enforces
// this with a single-slot guard; utterances that complete while a turn is
// active are dropped or deferred according to the configured busy policy.
// Due reminders take a separate path ([Orchestrator.HandleReminder]) that
// never touches the conversation history.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/murmur/internal/display"
	"github.com/MrWong99/murmur/internal/journal"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/reminder"
	"github.com/MrWong99/murmur/internal/trigger"
	"github.com/MrWong99/murmur/pkg/audio/wav"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// BusyPolicy decides the fate of an utterance submitted while a turn runs.
type BusyPolicy int

const (
	// DropWhenBusy discards the utterance.
	DropWhenBusy BusyPolicy = iota

	// DeferWhenBusy keeps the most recent utterance in a one-element slot
	// and runs it after the active turn. A newer utterance replaces an
	// older deferred one.
	DeferWhenBusy
)

// Turn outcomes recorded in metrics and the journal.
const (
	OutcomeOK            = "ok"
	OutcomeSTTError      = "stt_error"
	OutcomeEmpty         = "empty_transcript"
	OutcomeLLMError      = "llm_error"
	OutcomeScheduleError = "schedule_error"
	OutcomeTTSError      = "tts_error"
)

// Scheduler accepts reminders. *reminder.Scheduler implements it.
type Scheduler interface {
	ScheduleIn(delay time.Duration, message string) (reminder.Reminder, error)
	ScheduleAt(due time.Time, message string) (reminder.Reminder, error)
}

// Config holds the dependencies of an [Orchestrator]. STT, LLM, Scheduler
// and Display are required.
type Config struct {
	STT       stt.Provider
	LLM       llm.Provider
	Scheduler Scheduler
	Display   display.Display

	// Speaker is optional. Without one, replies are only displayed.
	Speaker *Speaker

	// History defaults to an unbounded history.
	History *History

	// Journal defaults to [journal.Nop].
	Journal journal.Journal

	// Metrics is optional.
	Metrics *observe.Metrics

	// Clock defaults to the real clock. It must be the clock the reminder
	// scheduler uses so AT reminders resolve against the same "now".
	Clock clockwork.Clock

	SystemPrompt string
	Language     string

	// SampleRate is the rate of submitted utterances. Defaults to 16000.
	SampleRate int

	BusyPolicy BusyPolicy

	// TurnTimeout bounds one turn including playback. Zero means no limit.
	TurnTimeout time.Duration

	// SpeechOutput enables speaking replies and reminders.
	SpeechOutput bool
}

// Orchestrator drives conversational turns. All methods are safe for
// concurrent use.
type Orchestrator struct {
	cfg     Config
	history *History
	journal journal.Journal
	clock   clockwork.Clock

	speech atomic.Bool

	mu         sync.Mutex
	active     bool
	pending    []float32
	hasPending bool

	wg sync.WaitGroup
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.STT == nil {
		errs = append(errs, errors.New("conversation: STT provider is required"))
	}
	if cfg.LLM == nil {
		errs = append(errs, errors.New("conversation: LLM provider is required"))
	}
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("conversation: reminder scheduler is required"))
	}
	if cfg.Display == nil {
		errs = append(errs, errors.New("conversation: display is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		history: cfg.History,
		journal: cfg.Journal,
		clock:   cfg.Clock,
	}
	if o.history == nil {
		o.history = NewHistory(0)
	}
	if o.journal == nil {
		o.journal = journal.Nop{}
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.cfg.SampleRate <= 0 {
		o.cfg.SampleRate = 16000
	}
	o.speech.Store(cfg.SpeechOutput)
	return o, nil
}

// History returns the conversation history.
func (o *Orchestrator) History() *History { return o.history }

// SetSpeechOutput toggles spoken output for subsequent replies and reminders.
func (o *Orchestrator) SetSpeechOutput(on bool) { o.speech.Store(on) }

// SpeechOutput reports whether replies are spoken.
func (o *Orchestrator) SpeechOutput() bool { return o.speech.Load() }

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Submit hands a completed utterance to the orchestrator without blocking.
// If no turn is active a new one starts in the background. Otherwise the
// busy policy applies. Submit reports whether the utterance will be
// processed; false means it was dropped.
func (o *Orchestrator) Submit(ctx context.Context, utterance []float32) bool {
	o.mu.Lock()
	if o.active {
		if o.cfg.BusyPolicy != DeferWhenBusy {
			o.mu.Unlock()
			o.recordDropped(ctx, "busy")
			return false
		}
		replaced := o.hasPending
		o.pending = utterance
		o.hasPending = true
		o.mu.Unlock()
		if replaced {
			o.recordDropped(ctx, "replaced")
		}
		return true
	}
	o.active = true
	o.wg.Add(1)
	o.mu.Unlock()

	go o.loop(ctx, utterance)
	return true
}

// loop runs utterance and then any deferred utterance until the slot is
// empty.
func (o *Orchestrator) loop(ctx context.Context, utterance []float32) {
	defer o.wg.Done()
	for {
		_ = o.RunTurn(ctx, utterance)

		o.mu.Lock()
		if !o.hasPending || ctx.Err() != nil {
			o.active = false
			o.pending = nil
			o.hasPending = false
			o.mu.Unlock()
			return
		}
		utterance = o.pending
		o.pending = nil
		o.hasPending = false
		o.mu.Unlock()
	}
}

// Wait blocks until no background turn is running or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTurn processes one utterance synchronously: transcribe, reply,
// interpret, display and speak. Failures before a reply exists end the turn
// with an error line and leave history and reminders untouched. The
// returned error is informational; it has already been displayed.
func (o *Orchestrator) RunTurn(ctx context.Context, utterance []float32) error {
	if o.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}
	ctx, span := observe.StartSpan(ctx, "conversation.turn")
	log := observe.Logger(ctx)

	start := o.clock.Now()
	entry := journal.Entry{Kind: journal.KindTurn, At: start}
	finish := func(outcome, trig string, err error) error {
		entry.Outcome = outcome
		entry.Trigger = trig
		span.SetAttributes(attribute.String("outcome", outcome), attribute.String("trigger", trig))
		defer observe.EndSpan(span, err)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordTurn(ctx, outcome, trig, o.clock.Since(start).Seconds())
		}
		if jerr := o.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
			log.Warn("conversation: journal write failed", "err", jerr)
		}
		return err
	}

	utteranceLen := time.Duration(len(utterance)) * time.Second / time.Duration(o.cfg.SampleRate)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.UtteranceLength.Record(ctx, utteranceLen.Seconds())
	}
	log.Debug("conversation: turn started", "utterance_ms", utteranceLen.Milliseconds())

	// 1. Transcribe.
	text, err := o.transcribe(ctx, span, utterance)
	if err != nil {
		if errors.Is(err, stt.ErrEmptyTranscript) {
			o.cfg.Display.Show(display.KindError, "I didn't catch that.")
			return finish(OutcomeEmpty, "", err)
		}
		log.Warn("conversation: transcription failed", "err", err)
		o.cfg.Display.Show(display.KindError, "Transcription failed: "+err.Error())
		return finish(OutcomeSTTError, "", err)
	}
	entry.User = text
	o.cfg.Display.Show(display.KindUser, text)

	// 2. Reply.
	reply, err := o.complete(ctx, text)
	if err != nil {
		log.Warn("conversation: dialogue request failed", "err", err)
		o.cfg.Display.Show(display.KindError, "Dialogue request failed: "+err.Error())
		return finish(OutcomeLLMError, "", err)
	}
	entry.Reply = reply

	// 3. Interpret.
	res := trigger.Resolve(reply, o.clock.Now())
	if res.SpecErr != nil {
		log.Info("conversation: reminder spec not understood, treating reply as text", "reply", reply, "err", res.SpecErr)
	}
	if res.Kind == trigger.KindReminder {
		var (
			r   reminder.Reminder
			err error
		)
		if res.Mode == trigger.ModeIn {
			r, err = o.cfg.Scheduler.ScheduleIn(res.Delay, res.Message)
		} else {
			r, err = o.cfg.Scheduler.ScheduleAt(res.Due, res.Message)
		}
		if err != nil {
			log.Warn("conversation: scheduling reminder failed", "err", err)
			o.cfg.Display.Show(display.KindError, "Could not schedule the reminder: "+err.Error())
			return finish(OutcomeScheduleError, res.Kind.String(), err)
		}
		entry.ReminderID = r.ID.String()
		entry.Due = r.Due
		log.Info("conversation: reminder scheduled", "id", r.ID, "due", r.Due)
	}
	o.history.Commit(text, reply)
	entry.Display = res.Text

	// 4. Display and speak.
	o.cfg.Display.Show(display.KindAssistant, res.Text)
	if err := o.speak(ctx, res.Text); err != nil {
		log.Warn("conversation: speech output failed", "err", err)
		o.cfg.Display.Show(display.KindError, "Speech output failed: "+err.Error())
		return finish(OutcomeTTSError, res.Kind.String(), err)
	}
	return finish(OutcomeOK, res.Kind.String(), nil)
}

// HandleReminder shows a due reminder and speaks it when speech output is
// enabled. It may run concurrently with a turn.
func (o *Orchestrator) HandleReminder(ctx context.Context, r reminder.Reminder) {
	ctx, span := observe.StartSpan(ctx, "conversation.reminder")
	defer span.End()
	log := observe.Logger(ctx)

	line := trigger.ReminderLine(r.Message)
	o.cfg.Display.Show(display.KindReminder, line)

	entry := journal.Entry{
		Kind:       journal.KindReminder,
		At:         o.clock.Now(),
		Display:    line,
		Trigger:    trigger.KindReminder.String(),
		Outcome:    OutcomeOK,
		ReminderID: r.ID.String(),
		Due:        r.Due,
	}
	if err := o.speak(ctx, line); err != nil {
		log.Warn("conversation: speaking reminder failed", "id", r.ID, "err", err)
		o.cfg.Display.Show(display.KindError, "Speech output failed: "+err.Error())
		entry.Outcome = OutcomeTTSError
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("conversation: journal write failed", "err", err)
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, span trace.Span, utterance []float32) (string, error) {
	if len(utterance) == 0 {
		return "", stt.ErrEmptyTranscript
	}
	sctx, done := observe.Stage(ctx, o.clock, observe.StageSTT, o.cfg.Metrics)
	tr, err := o.cfg.STT.Transcribe(sctx, stt.Request{
		Audio:    wav.Encode(utterance, o.cfg.SampleRate, 1),
		Language: o.cfg.Language,
	})
	done(err)
	if err != nil {
		return "", fmt.Errorf("conversation: transcribe: %w", err)
	}
	span.SetAttributes(attribute.Int("transcript.length", len(tr.Text)))
	return tr.Text, nil
}

func (o *Orchestrator) complete(ctx context.Context, text string) (string, error) {
	msgs := FitBudget(o.cfg.LLM, o.history.With(text))
	sctx, done := observe.Stage(ctx, o.clock, observe.StageLLM, o.cfg.Metrics)
	resp, err := o.cfg.LLM.Complete(sctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: o.cfg.SystemPrompt,
	})
	done(err)
	if err != nil {
		return "", fmt.Errorf("conversation: complete: %w", err)
	}
	if resp == nil {
		return "", errors.New("conversation: complete: no response")
	}
	return resp.Content, nil
}

func (o *Orchestrator) speak(ctx context.Context, text string) error {
	if o.cfg.Speaker == nil || !o.speech.Load() {
		return nil
	}
	return o.cfg.Speaker.Speak(ctx, text)
}

func (o *Orchestrator) recordDropped(ctx context.Context, reason string) {
	observe.Logger(ctx).Info("conversation: utterance dropped, turn in progress", "reason", reason)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.UtterancesDropped.Add(ctx, 1)
	}
}

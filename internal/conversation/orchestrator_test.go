package conversation_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/conversation"
	"github.com/MrWong99/murmur/internal/display"
	displaymock "github.com/MrWong99/murmur/internal/display/mock"
	"github.com/MrWong99/murmur/internal/journal"
	"github.com/MrWong99/murmur/internal/reminder"
	audiomock "github.com/MrWong99/murmur/pkg/audio/mock"
	"github.com/MrWong99/murmur/pkg/audio/wav"
	llmmock "github.com/MrWong99/murmur/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/murmur/pkg/provider/tts/mock"
)

// ---- helpers ----------------------------------------------------------------

var now = time.Date(2026, 5, 4, 14, 5, 0, 0, time.Local)

// fakeScheduler records scheduled reminders without running timers.
type fakeScheduler struct {
	mu    sync.Mutex
	err   error
	ins   []time.Duration
	ats   []time.Time
	saved []reminder.Reminder
}

func (f *fakeScheduler) ScheduleIn(delay time.Duration, message string) (reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return reminder.Reminder{}, f.err
	}
	f.ins = append(f.ins, delay)
	r := reminder.Reminder{ID: uuid.New(), Due: now.Add(delay), Message: message, Created: now}
	f.saved = append(f.saved, r)
	return r, nil
}

func (f *fakeScheduler) ScheduleAt(due time.Time, message string) (reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return reminder.Reminder{}, f.err
	}
	f.ats = append(f.ats, due)
	r := reminder.Reminder{ID: uuid.New(), Due: due, Message: message, Created: now}
	f.saved = append(f.saved, r)
	return r, nil
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fixture struct {
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	player  *audiomock.Player
	sched   *fakeScheduler
	display *displaymock.Display
	journal *journal.Memory
	orch    *conversation.Orchestrator
}

// noopGuard satisfies conversation.PlaybackGuard.
type noopGuard struct{}

func (noopGuard) BeginPlayback(time.Duration) {}
func (noopGuard) PlaybackFinished()           {}

func newFixture(t *testing.T, mutate func(*conversation.Config)) *fixture {
	t.Helper()
	f := &fixture{
		stt:     &sttmock.Provider{Text: "hello there"},
		llm:     &llmmock.Provider{},
		tts:     &ttsmock.Provider{},
		player:  &audiomock.Player{},
		sched:   &fakeScheduler{},
		display: &displaymock.Display{},
		journal: journal.NewMemory(0),
	}
	f.llm.SetReply("General Kenobi.")

	speaker, err := conversation.NewSpeaker(conversation.SpeakerConfig{
		TTS:    f.tts,
		Player: f.player,
		Guard:  noopGuard{},
		Path:   filepath.Join(t.TempDir(), "speech.wav"),
	})
	if err != nil {
		t.Fatalf("NewSpeaker: %v", err)
	}

	cfg := conversation.Config{
		STT:          f.stt,
		LLM:          f.llm,
		Scheduler:    f.sched,
		Display:      f.display,
		Speaker:      speaker,
		History:      conversation.NewHistory(10),
		Journal:      f.journal,
		Clock:        clockwork.NewFakeClockAt(now),
		SystemPrompt: "be brief",
		SampleRate:   16000,
		SpeechOutput: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.orch, err = conversation.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func utterance(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.1
	}
	return s
}

func (f *fixture) lastEntry(t *testing.T) journal.Entry {
	t.Helper()
	entries, _ := f.journal.Recent(context.Background(), 1)
	if len(entries) != 1 {
		t.Fatal("journal is empty")
	}
	return entries[0]
}

func waitTurns(t *testing.T, o *conversation.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// ---- tests ------------------------------------------------------------------

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := conversation.New(conversation.Config{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunTurn_PlainText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if got := f.display.Texts(display.KindUser); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("user lines = %v", got)
	}
	if got := f.display.Texts(display.KindAssistant); len(got) != 1 || got[0] != "General Kenobi." {
		t.Errorf("assistant lines = %v", got)
	}

	calls := f.llm.Requests()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d", len(calls))
	}
	req := calls[0]
	if req.SystemPrompt != "be brief" || len(req.Messages) != 1 || req.Messages[0].Content != "hello there" {
		t.Errorf("request = %+v", req)
	}

	// The utterance is uploaded as a mono 16 kHz WAV.
	clip, err := wav.Decode(f.stt.TranscribeCalls[0].Req.Audio)
	if err != nil {
		t.Fatalf("uploaded audio: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 || len(clip.Samples) != 1600 {
		t.Errorf("uploaded %d samples, %d Hz, %d ch", len(clip.Samples), clip.SampleRate, clip.Channels)
	}

	if n := len(f.player.Calls()); n != 1 {
		t.Errorf("Play calls = %d, want 1", n)
	}
	if f.orch.History().Len() != 2 {
		t.Errorf("history Len = %d, want 2", f.orch.History().Len())
	}

	e := f.lastEntry(t)
	if e.Kind != journal.KindTurn || e.Outcome != conversation.OutcomeOK || e.Trigger != "text" || e.User != "hello there" {
		t.Errorf("journal entry = %+v", e)
	}
}

func TestRunTurn_TimeQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.llm.SetReply("[TIME_NOW]")
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if got := f.display.Texts(display.KindAssistant); len(got) != 1 || got[0] != "2:05 PM Afternoon" {
		t.Errorf("assistant lines = %v", got)
	}
	if texts := f.tts.Texts(); len(texts) != 1 || texts[0] != "2:05 PM Afternoon" {
		t.Errorf("spoken = %v", texts)
	}
	// History keeps the raw reply so the model sees its own marker.
	if msgs := f.orch.History().Messages(); msgs[1].Content != "[TIME_NOW]" {
		t.Errorf("assistant history = %q", msgs[1].Content)
	}
	if e := f.lastEntry(t); e.Trigger != "time_query" || e.Display != "2:05 PM Afternoon" {
		t.Errorf("journal entry = %+v", e)
	}
}

func TestRunTurn_ReminderIn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.llm.SetReply("[REMIND|IN|10m|stretch]")
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(f.sched.ins) != 1 || f.sched.ins[0] != 10*time.Minute {
		t.Errorf("ScheduleIn delays = %v", f.sched.ins)
	}
	if got := f.display.Texts(display.KindAssistant); len(got) != 1 || got[0] != "Okay, I'll remind you in 10m: stretch" {
		t.Errorf("assistant lines = %v", got)
	}
	e := f.lastEntry(t)
	if e.Trigger != "reminder" || e.ReminderID == "" || !e.Due.Equal(now.Add(10*time.Minute)) {
		t.Errorf("journal entry = %+v", e)
	}
}

func TestRunTurn_ReminderAtRollsOver(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.llm.SetReply("[REMIND|at|9:00 AM|water the plants]")
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	want := time.Date(2026, 5, 5, 9, 0, 0, 0, time.Local)
	if len(f.sched.ats) != 1 || !f.sched.ats[0].Equal(want) {
		t.Errorf("ScheduleAt = %v, want %v", f.sched.ats, want)
	}
	if got := f.display.Texts(display.KindAssistant); len(got) != 1 || got[0] != "Okay, I'll remind you at 9:00 AM: water the plants" {
		t.Errorf("assistant lines = %v", got)
	}
}

func TestRunTurn_MalformedSpecFallsBackToText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	reply := "[REMIND|IN|0s|never]"
	f.llm.SetReply(reply)
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if f.sched.count() != 0 {
		t.Error("no reminder may be scheduled")
	}
	if got := f.display.Texts(display.KindAssistant); len(got) != 1 || got[0] != reply {
		t.Errorf("assistant lines = %v", got)
	}
}

func TestRunTurn_TranscriptionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		err     error
		outcome string
	}{
		{name: "empty transcript", text: "", outcome: conversation.OutcomeEmpty},
		{name: "network error", text: "ignored", err: errors.New("connection refused"), outcome: conversation.OutcomeSTTError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			f.stt.Text, f.stt.Err = tc.text, tc.err
			if err := f.orch.RunTurn(context.Background(), utterance(1600)); err == nil {
				t.Fatal("expected error")
			}
			if n := len(f.llm.Requests()); n != 0 {
				t.Errorf("Complete calls = %d, want 0", n)
			}
			if n := len(f.display.Texts(display.KindError)); n != 1 {
				t.Errorf("error lines = %d, want 1", n)
			}
			if n := len(f.display.Texts(display.KindUser)); n != 0 {
				t.Errorf("user lines = %d, want 0", n)
			}
			if f.orch.History().Len() != 0 {
				t.Error("history must stay empty")
			}
			if e := f.lastEntry(t); e.Outcome != tc.outcome {
				t.Errorf("outcome = %q, want %q", e.Outcome, tc.outcome)
			}
		})
	}
}

func TestRunTurn_DialogueFailureLeavesNoState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.llm.SetError(errors.New("503 service unavailable"))

	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err == nil {
		t.Fatal("expected error")
	}
	if f.orch.History().Len() != 0 {
		t.Error("history must stay empty")
	}
	if f.sched.count() != 0 {
		t.Error("no reminder may be scheduled")
	}
	if n := len(f.tts.Texts()); n != 0 {
		t.Errorf("synthesize calls = %d, want 0", n)
	}
	if e := f.lastEntry(t); e.Outcome != conversation.OutcomeLLMError {
		t.Errorf("outcome = %q", e.Outcome)
	}
}

func TestRunTurn_ScheduleFailureSkipsCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.sched.err = reminder.ErrClosed
	f.llm.SetReply("[REMIND|IN|5m|x]")

	if err := f.orch.RunTurn(context.Background(), utterance(1600)); !errors.Is(err, reminder.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if f.orch.History().Len() != 0 {
		t.Error("history must stay empty")
	}
	if n := len(f.display.Texts(display.KindAssistant)); n != 0 {
		t.Errorf("assistant lines = %d, want 0", n)
	}
}

func TestRunTurn_SpeechFailureKeepsReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.tts.SynthesizeErr = errors.New("quota exceeded")
	f.llm.SetReply("[REMIND|IN|5m|x]")

	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err == nil {
		t.Fatal("expected error")
	}
	if n := len(f.display.Texts(display.KindAssistant)); n != 1 {
		t.Errorf("assistant lines = %d, want 1", n)
	}
	if f.sched.count() != 1 || f.orch.History().Len() != 2 {
		t.Errorf("reminder and history must survive a speech failure")
	}
	if e := f.lastEntry(t); e.Outcome != conversation.OutcomeTTSError {
		t.Errorf("outcome = %q", e.Outcome)
	}
}

func TestRunTurn_SpeechOutputToggle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.orch.SetSpeechOutput(false)
	if f.orch.SpeechOutput() {
		t.Fatal("SpeechOutput should be false")
	}
	if err := f.orch.RunTurn(context.Background(), utterance(1600)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if n := len(f.tts.Texts()); n != 0 {
		t.Errorf("synthesize calls = %d, want 0", n)
	}
}

func TestRunTurn_HistoryCarriesPriorTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.llm.Queue("Hello.")
	ctx := context.Background()
	_ = f.orch.RunTurn(ctx, utterance(1600))
	f.stt.SetText("and again")
	_ = f.orch.RunTurn(ctx, utterance(1600))

	calls := f.llm.Requests()
	if len(calls) != 2 {
		t.Fatalf("Complete calls = %d", len(calls))
	}
	msgs := calls[1].Messages
	if len(msgs) != 3 || msgs[0].Content != "hello there" || msgs[1].Content != "Hello." || msgs[2].Content != "and again" {
		t.Errorf("second request messages = %+v", msgs)
	}
}

func TestSubmit_DropWhenBusy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f.stt.Hook = func(context.Context) {
		entered <- struct{}{}
		<-release
	}

	ctx := context.Background()
	if !f.orch.Submit(ctx, utterance(1600)) {
		t.Fatal("first Submit should start a turn")
	}
	<-entered
	if !f.orch.Busy() {
		t.Error("Busy should be true while a turn runs")
	}
	if f.orch.Submit(ctx, utterance(800)) {
		t.Error("Submit while busy should drop")
	}
	close(release)
	waitTurns(t, f.orch)

	if n := f.stt.CallCount(); n != 1 {
		t.Errorf("Transcribe calls = %d, want 1", n)
	}
	if f.orch.Busy() {
		t.Error("Busy should be false after the turn")
	}
	if !f.orch.Submit(ctx, utterance(1600)) {
		t.Error("Submit after the turn should start a new one")
	}
	waitTurns(t, f.orch)
}

func TestSubmit_DeferKeepsLatest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *conversation.Config) { c.BusyPolicy = conversation.DeferWhenBusy })
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f.stt.Hook = func(context.Context) {
		entered <- struct{}{}
		<-release
	}

	ctx := context.Background()
	f.orch.Submit(ctx, utterance(1600))
	<-entered
	if !f.orch.Submit(ctx, utterance(800)) {
		t.Error("deferred Submit should be accepted")
	}
	if !f.orch.Submit(ctx, utterance(400)) {
		t.Error("deferred Submit should be accepted")
	}
	close(release)
	waitTurns(t, f.orch)

	if n := f.stt.CallCount(); n != 2 {
		t.Fatalf("Transcribe calls = %d, want 2", n)
	}
	second, err := wav.Decode(f.stt.TranscribeCalls[1].Req.Audio)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(second.Samples) != 400 {
		t.Errorf("deferred turn had %d samples, want the latest (400)", len(second.Samples))
	}
}

func TestHandleReminder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	r := reminder.Reminder{ID: uuid.New(), Due: now, Message: "tea is ready"}
	f.orch.HandleReminder(context.Background(), r)

	if got := f.display.Texts(display.KindReminder); len(got) != 1 || got[0] != "Reminder: tea is ready" {
		t.Errorf("reminder lines = %v", got)
	}
	if texts := f.tts.Texts(); len(texts) != 1 || texts[0] != "Reminder: tea is ready" {
		t.Errorf("spoken = %v", texts)
	}
	if f.orch.History().Len() != 0 {
		t.Error("reminders must not touch the history")
	}
	e := f.lastEntry(t)
	if e.Kind != journal.KindReminder || e.ReminderID != r.ID.String() {
		t.Errorf("journal entry = %+v", e)
	}
}

func TestHandleReminder_ConcurrentWithTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.orch.RunTurn(ctx, utterance(1600))
		}()
		go func() {
			defer wg.Done()
			f.orch.HandleReminder(ctx, reminder.Reminder{ID: uuid.New(), Message: "ping"})
		}()
	}
	wg.Wait()

	if n := f.orch.History().Len(); n != 10 {
		t.Errorf("history Len = %d, want 10", n)
	}
	if n := len(f.display.Texts(display.KindReminder)); n != 5 {
		t.Errorf("reminder lines = %d, want 5", n)
	}
	if n := len(f.player.Calls()); n != 10 {
		t.Errorf("Play calls = %d, want 10", n)
	}
}

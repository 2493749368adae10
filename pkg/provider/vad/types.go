package vad

// Event represents a voice activity detection result for a single audio frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// RMS is the root-mean-square amplitude of the frame.
	RMS float64

	// Utterance holds the buffered samples of a completed segment. It is only
	// set when Type is SpeechEnd; ownership passes to the caller.
	Utterance []float32

	// SpeechMs is the accumulated voiced duration of the current or just
	// closed segment.
	SpeechMs int
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates an open segment absorbed the frame.
	SpeechContinue

	// SpeechEnd indicates a segment closed and produced an utterance.
	SpeechEnd

	// Silence indicates no segment is open.
	Silence

	// FalseTrigger indicates a segment closed with too little speech and was
	// discarded.
	FalseTrigger
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	case FalseTrigger:
		return "false_trigger"
	default:
		return "unknown"
	}
}

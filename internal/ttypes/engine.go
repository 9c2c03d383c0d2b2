package ttypes

// ParamUtteranceID is the parameter key carrying the completion id of an
// utterance.
const ParamUtteranceID = "utteranceId"

// SpeechEngine defines the contract for speech output engines.
// Implementations include Piper (offline) and an in-memory mock.
type SpeechEngine interface {
	// Speak adds text to the engine's own queue. mode is the engine-level
	// queue mode; the dispatcher always passes QueueModeQueue and achieves
	// interruption by calling Stop first.
	// params carries ParamUtteranceID when completion should be reported.
	Speak(text string, mode QueueMode, params map[string]string) error

	// Stop discards queued and in-progress speech. It may return before
	// playback has actually stopped.
	Stop() error

	// Shutdown releases the engine. It is not usable afterwards.
	Shutdown() error

	// IsAvailable reports whether the engine can accept requests.
	IsAvailable() bool

	// SetCompletionListener registers the function called with the
	// utterance id when an utterance finishes. The listener is called from
	// the engine's own goroutine, never from inside Speak or Stop.
	SetCompletionListener(fn func(id string))
}

package speech

// StateType is the dispatcher's speaking state.
type StateType int

const (
	// StateIdle indicates every dispatched utterance has completed.
	StateIdle StateType = iota
	// StateSpeakingInterruptible indicates speech that a later utterance may stop.
	StateSpeakingInterruptible
	// StateSpeakingUninterruptible indicates speech that only an explicit
	// override may stop.
	StateSpeakingUninterruptible
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeakingInterruptible:
		return "speaking"
	case StateSpeakingUninterruptible:
		return "speaking-uninterruptible"
	default:
		return "unknown"
	}
}

// State is a snapshot of the dispatcher.
type State struct {
	Current StateType
	// LastIndex is the index of the most recently dispatched utterance, -1 if none.
	LastIndex int
	// LastCompleted is the highest completed index, -1 if none.
	LastCompleted int
	// PendingActions counts completion actions not yet run.
	PendingActions int
	// Deferred counts utterances waiting out the post-stop grace delay.
	Deferred int
}

// IsSpeaking returns true if any dispatched utterance has not completed.
func (s State) IsSpeaking() bool {
	return s.Current != StateIdle
}

// Stats tracks dispatcher activity
type Stats struct {
	Spoken       int64
	Queued       int64
	Interrupts   int64
	Stops        int64
	Completed    int64
	Dropped      int64
	Unavailable  int64
	EngineErrors int64
}

package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/queue"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/speech"
)

// EngineType represents the speech engine selection
type EngineType string

const (
	// EngineMock represents the in-memory engine used for dry runs and tests
	EngineMock EngineType = "mock"

	// EnginePiper represents the Piper offline TTS engine
	EnginePiper EngineType = "piper"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

// ParseEngineType normalizes an engine name.
func ParseEngineType(name string) (EngineType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mock", "dry-run", "dryrun":
		return EngineMock, nil
	case "piper":
		return EnginePiper, nil
	case "":
		return EngineNone, ErrNoEngineConfigured
	default:
		return EngineNone, fmt.Errorf("%w: %s", ErrInvalidEngine, name)
	}
}

// State represents the controller lifecycle state
type State int

const (
	// StateIdle indicates the pipeline has not been started
	StateIdle State = iota

	// StateRunning indicates events are being accepted
	StateRunning

	// StateStopped indicates the pipeline was shut down
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the controller settings.
type Config struct {
	// Queue configures debouncing.
	Queue queue.Config

	// Speech configures the dispatcher.
	Speech speech.Config

	// DropDuplicates drops an event equal to the previously ingested one.
	DropDuplicates bool

	// SummaryInterval is the minimum time between announced summaries.
	SummaryInterval time.Duration

	// SummaryBurst is the number of summaries allowed back to back.
	SummaryBurst int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Queue:           queue.DefaultConfig(),
		Speech:          speech.DefaultConfig(),
		DropDuplicates:  true,
		SummaryInterval: time.Second,
		SummaryBurst:    1,
	}
}

// ControllerStats tracks pipeline activity
type ControllerStats struct {
	EventsReceived        int64
	DuplicatesDropped     int64
	LockTimeouts          int64
	EventsProcessed       int64
	Unmatched             int64
	NotificationsSilenced int64
	SummaryRequests       int64
	SummaryLimited        int64
	Errors                int64
	StartTime             time.Time
	LastActivity          time.Time

	Queue    queue.Stats
	Speech   speech.Stats
	Speaking speech.StateType
}

package tts

import (
	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// SpeechEngine defines the contract for speech output engines.
// Implementations include Piper (offline) and an in-memory mock.
type SpeechEngine = ttypes.SpeechEngine

// SourceListener receives source-set change notifications.
type SourceListener interface {
	// SourceAdded is called when a source package appears.
	SourceAdded(pkg string)

	// SourceUpdated is called when a source package or its rules change.
	SourceUpdated(pkg string)

	// SourceRemoved is called when a source package goes away.
	SourceRemoved(pkg string)
}

// Pipeline is the surface the host environment drives.
// This is the main interface for the speech subsystem.
type Pipeline interface {
	SourceListener

	// HandleEvent ingests one UI event.
	HandleEvent(ev *event.Event) error

	// AnnounceSummary speaks the pending notifications.
	AnnounceSummary() bool

	// StopAll drops queued events and silences the engine.
	StopAll()

	// RequestUninterruptibleNext protects the next utterance from
	// interruption.
	RequestUninterruptibleNext()

	// ClearNotifications forgets every pending notification.
	ClearNotifications()
}

var _ Pipeline = (*Controller)(nil)

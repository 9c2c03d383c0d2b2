// Package ttypes contains the types shared by the rule engine, the
// processor and the speech dispatcher.
// This package is used to break import cycles between rules, processor, speech and tts.
package ttypes

import (
	"fmt"
	"maps"
	"strings"
)

// QueueMode controls whether an utterance interrupts current speech.
type QueueMode int

const (
	// QueueModeInterrupt stops current speech before speaking.
	QueueModeInterrupt QueueMode = iota

	// QueueModeQueue waits for current speech to finish.
	QueueModeQueue

	// QueueModeComputeFromEventContext defers to the event-kind heuristic.
	QueueModeComputeFromEventContext

	// QueueModeUninterruptible interrupts current speech and cannot be
	// interrupted until it completes.
	QueueModeUninterruptible
)

var queueModeNames = [...]string{
	QueueModeInterrupt:               "INTERRUPT",
	QueueModeQueue:                   "QUEUE",
	QueueModeComputeFromEventContext: "COMPUTE_FROM_EVENT_CONTEXT",
	QueueModeUninterruptible:         "UNINTERRUPTIBLE",
}

// String returns the rule-document name of the mode
func (m QueueMode) String() string {
	if m >= 0 && int(m) < len(queueModeNames) {
		return queueModeNames[m]
	}
	return fmt.Sprintf("QueueMode(%d)", int(m))
}

// ParseQueueMode maps a rule-document name to its QueueMode.
func ParseQueueMode(name string) (QueueMode, bool) {
	for i, n := range queueModeNames {
		if n == name {
			return QueueMode(i), true
		}
	}
	return 0, false
}

// Metadata keys understood by the dispatcher.
const (
	// MetadataQueuing holds a QueueMode.
	MetadataQueuing = "queuing"
)

// Utterance is the text-plus-metadata unit handed to the speech dispatcher.
// It is created per dispatch cycle and is not safe for concurrent use.
type Utterance struct {
	Text     strings.Builder
	Metadata map[string]any
}

// NewUtterance returns an empty utterance.
func NewUtterance() *Utterance {
	return &Utterance{Metadata: make(map[string]any)}
}

// MergeMetadata copies the rule metadata into the utterance.
func (u *Utterance) MergeMetadata(md map[string]any) {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any, len(md))
	}
	maps.Copy(u.Metadata, md)
}

// QueueMode returns the queuing mode declared by the matching rule.
func (u *Utterance) QueueMode() (QueueMode, bool) {
	v, ok := u.Metadata[MetadataQueuing]
	if !ok {
		return 0, false
	}
	mode, ok := v.(QueueMode)
	return mode, ok
}

// String returns the utterance text.
func (u *Utterance) String() string {
	return u.Text.String()
}

// IsEmpty reports whether there is nothing to speak.
func (u *Utterance) IsEmpty() bool {
	return strings.TrimSpace(u.Text.String()) == ""
}

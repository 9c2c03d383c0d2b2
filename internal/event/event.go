// Package event models the UI state-change events that feed the speech
// pipeline. Events are captured by value: the host may reuse its own event
// object as soon as the delivery callback returns, so every field the
// pipeline needs is copied into an Event at ingestion time.
package event

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies the type of UI state change.
type Kind int

const (
	KindViewClicked              Kind = 1
	KindViewLongClicked          Kind = 2
	KindViewSelected             Kind = 4
	KindViewFocused              Kind = 8
	KindViewTextChanged          Kind = 16
	KindWindowStateChanged       Kind = 32
	KindNotificationStateChanged Kind = 64
)

var kindNames = map[Kind]string{
	KindViewClicked:              "TYPE_VIEW_CLICKED",
	KindViewLongClicked:          "TYPE_VIEW_LONG_CLICKED",
	KindViewSelected:             "TYPE_VIEW_SELECTED",
	KindViewFocused:              "TYPE_VIEW_FOCUSED",
	KindViewTextChanged:          "TYPE_VIEW_TEXT_CHANGED",
	KindWindowStateChanged:       "TYPE_WINDOW_STATE_CHANGED",
	KindNotificationStateChanged: "TYPE_NOTIFICATION_STATE_CHANGED",
}

// String returns the rule-document name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "TYPE_UNKNOWN_" + strconv.Itoa(int(k))
}

// ParseKind maps a rule-document kind name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("unknown event kind %q", text)
	}
	*k = parsed
	return nil
}

// Framework strings appended to the text of compound buttons.
const (
	StateChecked    = "checked"
	StateNotChecked = "not checked"
)

// Notification is the status-bar payload attached to notification events.
type Notification struct {
	Icon   int    `json:"icon"`
	Ticker string `json:"ticker"`
}

// Event is an immutable snapshot of a UI state change.
type Event struct {
	Kind               Kind     `json:"kind"`
	PackageName        string   `json:"packageName"`
	ClassName          string   `json:"className"`
	Text               []string `json:"text,omitempty"`
	BeforeText         string   `json:"beforeText,omitempty"`
	ContentDescription string   `json:"contentDescription,omitempty"`

	// EventTime is the host timestamp in milliseconds.
	EventTime int64 `json:"eventTime"`

	ItemCount        int `json:"itemCount,omitempty"`
	CurrentItemIndex int `json:"currentItemIndex,omitempty"`
	FromIndex        int `json:"fromIndex,omitempty"`
	AddedCount       int `json:"addedCount,omitempty"`
	RemovedCount     int `json:"removedCount,omitempty"`

	Checked    bool `json:"checked,omitempty"`
	Enabled    bool `json:"enabled,omitempty"`
	FullScreen bool `json:"fullScreen,omitempty"`
	Password   bool `json:"password,omitempty"`

	Notification *Notification `json:"notification,omitempty"`
}

// Snapshot returns a deep copy of ev with its text normalized to NFC.
func Snapshot(ev *Event) Event {
	snap := *ev
	if ev.Text != nil {
		snap.Text = make([]string, len(ev.Text))
		for i, t := range ev.Text {
			snap.Text[i] = norm.NFC.String(t)
		}
	}
	snap.BeforeText = norm.NFC.String(ev.BeforeText)
	snap.ContentDescription = norm.NFC.String(ev.ContentDescription)
	if ev.Notification != nil {
		n := *ev.Notification
		n.Ticker = norm.NFC.String(n.Ticker)
		snap.Notification = &n
	}
	return snap
}

// IsNotification reports whether the event is a status notification.
func (e *Event) IsNotification() bool {
	return e.Kind == KindNotificationStateChanged
}

// AggregatedText joins the text items with single spaces. When
// dropState is set, the first "checked"/"not checked" item is skipped.
// An event without text falls back to its content description.
func (e *Event) AggregatedText(dropState bool) string {
	stateIndex := -1
	if dropState {
		stateIndex = slices.IndexFunc(e.Text, func(s string) bool {
			return s == StateChecked || s == StateNotChecked
		})
	}

	var b strings.Builder
	for i, t := range e.Text {
		if i == stateIndex {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	if b.Len() == 0 {
		return e.ContentDescription
	}
	return b.String()
}

// SameNotification reports whether both events carry the same icon and
// ticker text. Events without a payload never match.
func SameNotification(a, b *Event) bool {
	if a.Notification == nil || b.Notification == nil {
		return false
	}
	return *a.Notification == *b.Notification
}

// Equal reports whether two events describe the same state change. Events
// carrying a notification payload are never considered equal.
func Equal(a, b *Event) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Notification != nil || b.Notification != nil {
		return false
	}
	return a.Kind == b.Kind &&
		a.PackageName == b.PackageName &&
		a.ClassName == b.ClassName &&
		slices.Equal(a.Text, b.Text) &&
		a.ContentDescription == b.ContentDescription &&
		a.BeforeText == b.BeforeText &&
		a.AddedCount == b.AddedCount &&
		a.RemovedCount == b.RemovedCount &&
		a.FromIndex == b.FromIndex &&
		a.CurrentItemIndex == b.CurrentItemIndex &&
		a.ItemCount == b.ItemCount &&
		a.Checked == b.Checked &&
		a.Enabled == b.Enabled &&
		a.FullScreen == b.FullScreen &&
		a.Password == b.Password &&
		a.EventTime == b.EventTime
}

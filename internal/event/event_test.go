package event

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestKind_ParseAndString(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"TYPE_VIEW_CLICKED", KindViewClicked},
		{"TYPE_VIEW_LONG_CLICKED", KindViewLongClicked},
		{"TYPE_VIEW_SELECTED", KindViewSelected},
		{"TYPE_VIEW_FOCUSED", KindViewFocused},
		{"TYPE_VIEW_TEXT_CHANGED", KindViewTextChanged},
		{"TYPE_WINDOW_STATE_CHANGED", KindWindowStateChanged},
		{"TYPE_NOTIFICATION_STATE_CHANGED", KindNotificationStateChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKind(tt.name)
			if !ok {
				t.Fatalf("Expected %s to parse", tt.name)
			}
			if got != tt.kind {
				t.Errorf("Expected %d, got %d", tt.kind, got)
			}
			if got.String() != tt.name {
				t.Errorf("Expected %s, got %s", tt.name, got.String())
			}
		})
	}

	if _, ok := ParseKind("TYPE_BOGUS"); ok {
		t.Error("Expected unknown kind name to fail")
	}
}

func TestEvent_AggregatedText(t *testing.T) {
	tests := []struct {
		name      string
		ev        Event
		dropState bool
		want      string
	}{
		{
			name: "joins with spaces",
			ev:   Event{Text: []string{"Hello", "world"}},
			want: "Hello world",
		},
		{
			name:      "drops compound button state",
			ev:        Event{Text: []string{"Wi-Fi", StateChecked}},
			dropState: true,
			want:      "Wi-Fi",
		},
		{
			name: "keeps state when not compound",
			ev:   Event{Text: []string{"Wi-Fi", StateChecked}},
			want: "Wi-Fi checked",
		},
		{
			name: "falls back to content description",
			ev:   Event{ContentDescription: "Back"},
			want: "Back",
		},
		{
			name:      "state only falls back",
			ev:        Event{Text: []string{StateNotChecked}, ContentDescription: "Mute"},
			dropState: true,
			want:      "Mute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.AggregatedText(tt.dropState); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	orig := &Event{
		Kind:         KindNotificationStateChanged,
		Text:         []string{"one"},
		Notification: &Notification{Icon: 7, Ticker: "tick"},
	}
	snap := Snapshot(orig)

	orig.Text[0] = "changed"
	orig.Notification.Ticker = "changed"

	if snap.Text[0] != "one" {
		t.Errorf("Expected snapshot text to be unaffected, got %q", snap.Text[0])
	}
	if snap.Notification.Ticker != "tick" {
		t.Errorf("Expected snapshot ticker to be unaffected, got %q", snap.Notification.Ticker)
	}
}

func TestSnapshot_NormalizesText(t *testing.T) {
	// "e" followed by a combining acute accent.
	decomposed := "cafe\u0301"
	snap := Snapshot(&Event{Text: []string{decomposed}})
	if snap.Text[0] != "caf\u00e9" {
		t.Errorf("Expected NFC text, got %q", snap.Text[0])
	}
}

func TestEqual(t *testing.T) {
	a := &Event{Kind: KindViewFocused, PackageName: "p", ClassName: "c", Text: []string{"x"}, EventTime: 10}
	b := Snapshot(a)

	if !Equal(a, &b) {
		t.Error("Expected identical events to be equal")
	}

	b.EventTime = 11
	if Equal(a, &b) {
		t.Error("Expected events with different times to differ")
	}

	n1 := &Event{Kind: KindNotificationStateChanged, Notification: &Notification{Icon: 1}}
	n2 := &Event{Kind: KindNotificationStateChanged, Notification: &Notification{Icon: 1}}
	if Equal(n1, n2) {
		t.Error("Expected events with payloads to never be equal")
	}
	if !SameNotification(n1, n2) {
		t.Error("Expected same icon and ticker to match")
	}
}

func TestDecoder_Next(t *testing.T) {
	feed := strings.Join([]string{
		`# a comment`,
		``,
		`{"event":{"kind":"TYPE_VIEW_FOCUSED","packageName":"com.x","className":"android.widget.Button","text":["OK"]}}`,
		`{"control":"summary"}`,
		`not json`,
		`{}`,
		`{"control":"source_removed","package":"com.x"}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(feed))

	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg.Event == nil || msg.Event.Kind != KindViewFocused || msg.Event.Text[0] != "OK" {
		t.Errorf("Expected focused event, got %+v", msg.Event)
	}

	msg, err = dec.Next()
	if err != nil || msg.Control != ControlSummary {
		t.Errorf("Expected summary control, got %+v (err %v)", msg, err)
	}

	if _, err = dec.Next(); err == nil {
		t.Error("Expected error for malformed line")
	}

	if _, err = dec.Next(); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}

	msg, err = dec.Next()
	if err != nil || msg.Control != ControlSourceRemoved || msg.Package != "com.x" {
		t.Errorf("Expected source_removed for com.x, got %+v (err %v)", msg, err)
	}

	if _, err = dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

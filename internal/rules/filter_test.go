package rules

import (
	"testing"

	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
)

func TestPropertyFilter_Accept(t *testing.T) {
	resolver, err := NewClassResolver(0, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}
	ctx := &Context{Classes: resolver, Activity: "com.x.MainActivity"}

	base := event.Event{
		Kind:        event.KindViewClicked,
		PackageName: "com.x",
		ClassName:   "android.widget.CheckBox",
		Text:        []string{"Wi-Fi", event.StateChecked},
		Checked:     true,
		EventTime:   42,
	}

	tests := []struct {
		name  string
		props map[string]any
		ev    func(e *event.Event)
		want  bool
	}{
		{"empty filter accepts", map[string]any{}, nil, true},
		{"kind matches", map[string]any{PropEventType: int(event.KindViewClicked)}, nil, true},
		{"kind differs", map[string]any{PropEventType: int(event.KindViewFocused)}, nil, false},
		{"exact class", map[string]any{PropClassName: "android.widget.CheckBox"}, nil, true},
		{"superclass", map[string]any{PropClassName: "android.widget.Button"}, nil, true},
		{"unrelated class", map[string]any{PropClassName: "android.widget.EditText"}, nil, false},
		{"unknown filter class fails closed", map[string]any{PropClassName: "com.x.Custom"}, nil, false},
		{"unknown event class fails closed", map[string]any{PropClassName: "android.view.View"},
			func(e *event.Event) { e.ClassName = "com.x.Mystery" }, false},
		{"missing event value rejects", map[string]any{PropContentDescription: "Back"}, nil, false},
		{"compound text drops state", map[string]any{PropText: "Wi-Fi"}, nil, true},
		{"boolean", map[string]any{PropChecked: true, PropPassword: false}, nil, true},
		{"event time as float", map[string]any{PropEventTime: 42.0}, nil, true},
		{"activity", map[string]any{PropActivity: "com.x.MainActivity"}, nil, true},
		{"all must match", map[string]any{PropEventType: int(event.KindViewClicked), PropPackageName: "com.y"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			if tt.ev != nil {
				tt.ev(&ev)
			}
			if got := NewPropertyFilter(tt.props).Accept(&ev, ctx); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPropertyFilter_FixedOrder(t *testing.T) {
	f := NewPropertyFilter(map[string]any{
		PropText:        "x",
		PropClassName:   "c",
		PropEventType:   1,
		PropPackageName: "p",
	})
	got := f.Properties()
	want := []string{PropEventType, PropPackageName, PropClassName, PropText}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

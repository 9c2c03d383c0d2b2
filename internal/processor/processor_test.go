package processor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// literal is a formatter that writes a fixed string.
type literal string

func (l literal) Format(_ *event.Event, _ *rules.Context, utt *ttypes.Utterance) error {
	utt.Text.WriteString(string(l))
	return nil
}

// kindFilter accepts a single event kind.
type kindFilter event.Kind

func (k kindFilter) Accept(ev *event.Event, _ *rules.Context) bool {
	return ev.Kind == event.Kind(k)
}

type panicFilter struct{}

func (panicFilter) Accept(*event.Event, *rules.Context) bool { panic("broken filter") }

func rule(f rules.Filter, text string) *rules.Rule {
	return &rules.Rule{Filter: f, Formatter: literal(text), Metadata: map[string]any{}}
}

func TestProcessor_OverridePrecedence(t *testing.T) {
	defaults := rules.RuleSet{rule(nil, "default")}
	p := New(defaults, nil, log.Default())
	p.SetOverride("com.x", rules.RuleSet{rule(kindFilter(event.KindViewClicked), "override")})

	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"override matches", event.Event{Kind: event.KindViewClicked, PackageName: "com.x"}, "override"},
		{"override misses, falls back", event.Event{Kind: event.KindViewFocused, PackageName: "com.x"}, "default"},
		{"other package uses default", event.Event{Kind: event.KindViewClicked, PackageName: "com.y"}, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			utt, ok := p.Process(&tt.ev, "")
			if !ok {
				t.Fatal("Expected a match")
			}
			if utt.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, utt.String())
			}
		})
	}
}

func TestProcessor_NoMatch(t *testing.T) {
	p := New(rules.RuleSet{rule(kindFilter(event.KindViewClicked), "x")}, nil, nil)
	if _, ok := p.Process(&event.Event{Kind: event.KindViewFocused}, ""); ok {
		t.Error("Expected no match")
	}
}

func TestProcessor_PanickingRuleIsSkipped(t *testing.T) {
	p := New(rules.RuleSet{
		{Filter: panicFilter{}, Formatter: literal("never")},
		rule(nil, "fallback"),
	}, nil, log.Default())

	utt, ok := p.Process(&event.Event{Kind: event.KindViewClicked}, "")
	if !ok || utt.String() != "fallback" {
		t.Errorf("Expected fallback utterance, got %v (ok=%v)", utt, ok)
	}
}

func TestProcessor_EnsureOverrideLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	loader := func(pkg string) (rules.RuleSet, bool, error) {
		calls.Add(1)
		switch pkg {
		case "com.x":
			return rules.RuleSet{rule(nil, "from loader")}, true, nil
		case "com.broken":
			return nil, false, errors.New("corrupt")
		default:
			return nil, false, nil
		}
	}
	p := New(rules.RuleSet{rule(nil, "default")}, loader, log.Default())

	for i := 0; i < 3; i++ {
		utt, _ := p.Process(&event.Event{PackageName: "com.x"}, "")
		if utt.String() != "from loader" {
			t.Errorf("Expected loaded override, got %q", utt.String())
		}
	}
	if calls.Load() != 1 {
		t.Errorf("Expected loader to run once, got %d", calls.Load())
	}

	for _, pkg := range []string{"com.absent", "com.broken"} {
		utt, ok := p.Process(&event.Event{PackageName: pkg}, "")
		if !ok || utt.String() != "default" {
			t.Errorf("%s: expected default, got %v", pkg, utt)
		}
	}

	p.RemoveOverride("com.x")
	p.Process(&event.Event{PackageName: "com.x"}, "")
	if calls.Load() != 4 {
		t.Errorf("Expected reload after removal, got %d loader calls", calls.Load())
	}
}

func TestProcessor_ReloadOverride(t *testing.T) {
	text := "first"
	loader := func(string) (rules.RuleSet, bool, error) {
		if text == "" {
			return nil, false, nil
		}
		return rules.RuleSet{rule(nil, text)}, true, nil
	}
	p := New(rules.RuleSet{rule(nil, "default")}, loader, nil)

	p.EnsureOverride("com.x")
	text = "second"
	if err := p.ReloadOverride("com.x"); err != nil {
		t.Fatalf("ReloadOverride failed: %v", err)
	}
	utt, _ := p.Process(&event.Event{PackageName: "com.x"}, "")
	if utt.String() != "second" {
		t.Errorf("Expected reloaded rules, got %q", utt.String())
	}

	text = ""
	_ = p.ReloadOverride("com.x")
	if len(p.Overrides()) != 0 {
		t.Errorf("Expected override removed, got %v", p.Overrides())
	}
}

func TestProcessor_ConcurrentOverrideChanges(t *testing.T) {
	p := New(rules.RuleSet{rule(nil, "default")}, nil, nil)
	override := rules.RuleSet{rule(nil, "override")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p.SetOverride("com.x", override)
			p.RemoveOverride("com.x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			utt, ok := p.Process(&event.Event{PackageName: "com.x"}, "")
			if !ok {
				t.Error("Expected a match")
				return
			}
			if s := utt.String(); s != "default" && s != "override" {
				t.Errorf("Unexpected utterance %q", s)
				return
			}
		}
	}()
	wg.Wait()
}

func TestDirLoader_WithActivity(t *testing.T) {
	dir := t.TempDir()
	doc := `
rules:
  - filter:
      activity: com.x.Settings
    formatter:
      selectors: [{text: settings}]
`
	if err := os.WriteFile(filepath.Join(dir, "com.x.yaml"), []byte(strings.TrimSpace(doc)), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver, err := rules.NewClassResolver(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	repo := rules.NewRepository(rules.NewBuiltinRegistry(), resolver, nil)
	p := New(nil, DirLoader(repo, dir), nil, WithClassResolver(resolver))

	utt, ok := p.Process(&event.Event{PackageName: "com.x"}, "com.x.Settings")
	if !ok || utt.String() != "settings" {
		t.Errorf("Expected settings utterance, got %v (ok=%v)", utt, ok)
	}
	if _, ok := p.Process(&event.Event{PackageName: "com.x"}, "com.x.Main"); ok {
		t.Error("Expected no match in a different activity")
	}
}

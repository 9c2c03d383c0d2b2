package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/tts"
)

func testConfig() tts.Config {
	cfg := tts.DefaultConfig()
	cfg.Debounce.Timeout = 10 * time.Millisecond
	cfg.Debounce.InCallTimeout = 10 * time.Millisecond
	return cfg
}

func TestRun_SpeaksFeed(t *testing.T) {
	feed := strings.Join([]string{
		`{"event":{"kind":"TYPE_VIEW_CLICKED","packageName":"com.x","className":"android.widget.Button","text":["OK"],"eventTime":1}}`,
		`{"event":{"kind":"TYPE_VIEW_FOCUSED","packageName":"com.x","className":"android.widget.EditText","text":["Search"],"eventTime":2}}`,
	}, "\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := run(ctx, testConfig(), strings.NewReader(feed), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := "OK\nEdit text Search\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestRun_Overrides(t *testing.T) {
	dir := t.TempDir()
	doc := `
rules:
  - filter:
      eventType: TYPE_VIEW_CLICKED
    formatter:
      template: "%1$s pressed"
      selectors:
        - property: text
`
	if err := os.WriteFile(filepath.Join(dir, "com.x.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Rules.Overrides = dir

	feed := `{"event":{"kind":"TYPE_VIEW_CLICKED","packageName":"com.x","className":"android.widget.Button","text":["OK"],"eventTime":1}}`

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := run(ctx, cfg, strings.NewReader(feed), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.String() != "OK pressed\n" {
		t.Errorf("Expected %q, got %q", "OK pressed\n", out.String())
	}
}

func TestRun_InvalidDefaultRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - filter:\n      colour: red\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Rules.Default = path

	var out bytes.Buffer
	if err := run(context.Background(), cfg, strings.NewReader(""), &out); err == nil {
		t.Error("Expected error for invalid default rules")
	}
}

func TestOpenEvents(t *testing.T) {
	r, closer, err := openEvents("-")
	if err != nil {
		t.Fatalf("openEvents failed: %v", err)
	}
	if r != os.Stdin {
		t.Error("Expected stdin for -")
	}
	_ = closer()

	if _, _, err := openEvents(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("Expected error for missing feed")
	}
}

func TestRulesMarkdown(t *testing.T) {
	repo, _, err := newRepository(log.Default())
	if err != nil {
		t.Fatalf("newRepository failed: %v", err)
	}
	set, err := repo.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}

	md := rulesMarkdown("default", set)
	if !strings.HasPrefix(md, "# default\n") {
		t.Errorf("Expected title heading, got %q", md[:min(len(md), 20)])
	}
	if got := strings.Count(md, "\n| "); got != len(set)+1 {
		t.Errorf("Expected %d table rows, got %d", len(set)+1, got)
	}
	if !strings.Contains(md, "queuing=") {
		t.Error("Expected metadata column to list queuing modes")
	}

	if md := rulesMarkdown("empty", nil); !strings.Contains(md, "No rules.") {
		t.Errorf("Expected empty notice, got %q", md)
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", " "},
		{"a=b", "`a=b`"},
		{"x|y", "`x\\|y`"},
	}
	for _, tt := range tests {
		if got := cell(tt.in); got != tt.want {
			t.Errorf("Expected cell(%q) = %q, got %q", tt.in, tt.want, got)
		}
	}
}

package engines

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

func params(id string) map[string]string {
	return map[string]string{ttypes.ParamUtteranceID: id}
}

func TestMockEngine_RecordsCalls(t *testing.T) {
	var out bytes.Buffer
	m := NewMockEngine(WithOutput(&out))

	_ = m.Speak("hello", ttypes.QueueModeQueue, params("a"))
	_ = m.Stop()
	_ = m.Speak("world", ttypes.QueueModeQueue, params("b"))

	if got := m.Spoken(); len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Errorf("Expected [hello world], got %v", got)
	}
	if m.Count("stop") != 1 {
		t.Errorf("Expected 1 stop, got %d", m.Count("stop"))
	}
	if out.String() != "hello\nworld\n" {
		t.Errorf("Expected printed utterances, got %q", out.String())
	}

	// Stop discarded "a".
	if pending := m.Pending(); len(pending) != 1 || pending[0] != "b" {
		t.Errorf("Expected [b] pending, got %v", pending)
	}
}

func TestMockEngine_Complete(t *testing.T) {
	m := NewMockEngine()

	var got []string
	m.SetCompletionListener(func(id string) { got = append(got, id) })

	_ = m.Speak("one", ttypes.QueueModeQueue, params("1"))
	_ = m.Speak("two", ttypes.QueueModeQueue, params("2"))

	if id, ok := m.CompleteNext(); !ok || id != "1" {
		t.Errorf("Expected to complete 1, got %q (ok=%v)", id, ok)
	}
	if m.Complete("1") {
		t.Error("Expected second completion of 1 to be rejected")
	}
	if !m.Complete("2") {
		t.Error("Expected 2 to complete")
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 completions, got %v", got)
	}
}

func TestMockEngine_AutoComplete(t *testing.T) {
	m := NewMockEngine(WithAutoComplete())
	defer m.Shutdown()

	var mu sync.Mutex
	done := make(chan string, 4)
	m.SetCompletionListener(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		done <- id
	})

	_ = m.Speak("one", ttypes.QueueModeQueue, params("1"))
	_ = m.Speak("two", ttypes.QueueModeQueue, params("2"))

	for _, want := range []string{"1", "2"} {
		select {
		case id := <-done:
			if id != want {
				t.Errorf("Expected %s, got %s", want, id)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for completion of %s", want)
		}
	}
}

func TestMockEngine_Unavailable(t *testing.T) {
	m := NewMockEngine()
	_ = m.Shutdown()

	if m.IsAvailable() {
		t.Error("Expected engine to be unavailable after shutdown")
	}
	if err := m.Speak("x", ttypes.QueueModeQueue, nil); err != ttypes.ErrEngineUnavailable {
		t.Errorf("Expected ErrEngineUnavailable, got %v", err)
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("Expected second shutdown to succeed, got %v", err)
	}
}

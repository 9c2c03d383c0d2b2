package engines

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Call records one request made to the MockEngine.
type Call struct {
	Op   string // "speak", "stop" or "shutdown"
	Text string
	Mode ttypes.QueueMode
	ID   string
}

// MockEngine implements the speech engine interface without audio.
// Completions are reported when the test calls Complete, or right away
// from a background goroutine when auto-completion is enabled.
type MockEngine struct {
	mu           sync.Mutex
	calls        []Call
	pending      []string
	listener     func(id string)
	available    bool
	autoComplete bool
	out          io.Writer
	failure      error
	completions  chan string
	quit         chan struct{}
	shutdown     bool
}

// MockOption configures a MockEngine.
type MockOption func(*MockEngine)

// WithOutput prints every spoken utterance to w.
func WithOutput(w io.Writer) MockOption {
	return func(m *MockEngine) {
		m.out = w
	}
}

// WithAutoComplete reports each utterance as completed as soon as it is
// queued, in order.
func WithAutoComplete() MockOption {
	return func(m *MockEngine) {
		m.autoComplete = true
	}
}

// NewMockEngine creates a new mock speech engine.
func NewMockEngine(opts ...MockOption) *MockEngine {
	m := &MockEngine{available: true, quit: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}
	if m.autoComplete {
		m.completions = make(chan string, 64)
		go m.deliver()
	}
	return m
}

// Speak records the request.
func (m *MockEngine) Speak(text string, mode ttypes.QueueMode, params map[string]string) error {
	m.mu.Lock()
	if !m.available {
		m.mu.Unlock()
		return ttypes.ErrEngineUnavailable
	}
	if m.failure != nil {
		err := m.failure
		m.mu.Unlock()
		return err
	}
	id := params[ttypes.ParamUtteranceID]
	m.calls = append(m.calls, Call{Op: "speak", Text: text, Mode: mode, ID: id})
	if id != "" {
		m.pending = append(m.pending, id)
	}
	out := m.out
	m.mu.Unlock()

	if out != nil {
		fmt.Fprintln(out, text)
	}
	if m.autoComplete && id != "" {
		select {
		case m.completions <- id:
		case <-m.quit:
		}
	}
	return nil
}

// Stop records the request and forgets pending completions.
func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "stop"})
	m.pending = nil
	return nil
}

// Shutdown makes the engine unavailable.
func (m *MockEngine) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil
	}
	m.calls = append(m.calls, Call{Op: "shutdown"})
	m.shutdown = true
	m.available = false
	m.pending = nil
	close(m.quit)
	return nil
}

// IsAvailable returns the mock availability state.
func (m *MockEngine) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// SetCompletionListener registers the completion callback.
func (m *MockEngine) SetCompletionListener(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

func (m *MockEngine) deliver() {
	for {
		select {
		case id := <-m.completions:
			m.Complete(id)
		case <-m.quit:
			return
		}
	}
}

// Test control methods

// Complete reports id as completed. It returns false if id is not pending,
// e.g. because Stop discarded it.
func (m *MockEngine) Complete(id string) bool {
	m.mu.Lock()
	i := slices.Index(m.pending, id)
	if i < 0 {
		m.mu.Unlock()
		return false
	}
	m.pending = slices.Delete(m.pending, i, i+1)
	listener := m.listener
	m.mu.Unlock()

	if listener != nil {
		listener(id)
	}
	return true
}

// CompleteNext reports the oldest pending utterance as completed and
// returns its id.
func (m *MockEngine) CompleteNext() (string, bool) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return "", false
	}
	id := m.pending[0]
	m.mu.Unlock()
	return id, m.Complete(id)
}

// SetAvailable toggles availability.
func (m *MockEngine) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetFailure makes Speak fail with err; nil restores normal operation.
func (m *MockEngine) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Calls returns a copy of every recorded request.
func (m *MockEngine) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Spoken returns the text of every speak request, in order.
func (m *MockEngine) Spoken() []string {
	var out []string
	for _, c := range m.Calls() {
		if c.Op == "speak" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Count returns the number of recorded requests with the given op.
func (m *MockEngine) Count(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Pending returns the ids awaiting completion.
func (m *MockEngine) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.pending)
}

// Ensure MockEngine implements the SpeechEngine interface
var _ ttypes.SpeechEngine = (*MockEngine)(nil)

// Package speech decides how each utterance reaches the speech engine:
// whether it interrupts current speech, waits behind it, or must not be
// interrupted itself. Utterances are tagged with completion ids so that the
// engine's asynchronous completion reports can drive the dispatcher state.
package speech

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// ErrDispatcherClosed is returned when Speak is called after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Config holds dispatcher settings.
type Config struct {
	// GraceDelay is waited after stopping the engine before the
	// interrupting utterance is sent. Zero sends it immediately.
	GraceDelay time.Duration

	// IDPrefix is prepended to the utterance index to form completion ids.
	IDPrefix string
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		GraceDelay: 0,
		IDPrefix:   "talkback_",
	}
}

type request struct {
	text string
	id   string
}

// Dispatcher resolves the queueing mode of each utterance and drives the
// speech engine accordingly.
type Dispatcher struct {
	engine ttypes.SpeechEngine
	cfg    Config
	logger *log.Logger

	// speakMu serializes engine calls so utterances reach the engine in
	// dispatch order.
	speakMu sync.Mutex

	mu               sync.Mutex
	nextIndex        int
	lastKind         event.Kind
	hasLastKind      bool
	override         *ttypes.QueueMode
	uninterruptUntil int
	lastCompleted    int
	actions          map[int][]func()
	deferred         []request
	graceTimer       *time.Timer
	graceGen         uint64
	closed           bool
	stats            Stats
}

// NewDispatcher creates a dispatcher for engine and registers itself as the
// engine's completion listener.
func NewDispatcher(engine ttypes.SpeechEngine, cfg Config, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = DefaultConfig().IDPrefix
	}
	if cfg.GraceDelay < 0 {
		cfg.GraceDelay = 0
	}

	d := &Dispatcher{
		engine:           engine,
		cfg:              cfg,
		logger:           logger.WithPrefix("speech"),
		uninterruptUntil: -1,
		lastCompleted:    -1,
		actions:          make(map[int][]func()),
	}
	engine.SetCompletionListener(d.OnUtteranceCompleted)
	return d
}

// SetNextQueueMode makes the next spoken utterance use mode regardless of
// its metadata or the current state. The override is consumed by that
// utterance.
func (d *Dispatcher) SetNextQueueMode(mode ttypes.QueueMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.override = &mode
}

// Speak dispatches utt, produced for an event of the given kind, and
// returns its utterance index. Empty utterances are dropped and return -1.
// When the engine is unavailable the utterance is dropped and an
// ENGINE_UNAVAILABLE error is returned; callers are expected to log it and
// carry on.
func (d *Dispatcher) Speak(utt *ttypes.Utterance, kind event.Kind) (int, error) {
	if utt == nil || utt.IsEmpty() {
		d.mu.Lock()
		d.stats.Dropped++
		d.mu.Unlock()
		return -1, nil
	}

	d.speakMu.Lock()
	defer d.speakMu.Unlock()

	if !d.engine.IsAvailable() {
		d.mu.Lock()
		d.stats.Unavailable++
		d.mu.Unlock()
		d.logger.Debug("Engine unavailable, dropping utterance", "text", clip(utt.String()))
		return -1, ttypes.NewPipelineError(ttypes.ErrorCodeEngineUnavailable,
			"utterance dropped", ttypes.ErrEngineUnavailable)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return -1, ErrDispatcherClosed
	}

	speaking := d.speakingLocked()
	mode, protect := d.resolveModeLocked(utt, kind)
	index := d.nextIndex
	d.nextIndex++
	d.lastKind = kind
	d.hasLastKind = true

	req := request{
		text: strings.TrimSpace(utt.String()),
		id:   d.cfg.IDPrefix + strconv.Itoa(index),
	}

	interrupt := mode == ttypes.QueueModeInterrupt || mode == ttypes.QueueModeUninterruptible
	if protect {
		d.uninterruptUntil = index
	}

	var stop, send bool
	switch {
	case interrupt && (speaking || len(d.deferred) > 0):
		stop = true
		d.stats.Interrupts++
		if d.cfg.GraceDelay > 0 {
			d.deferLocked(req)
		} else {
			d.clearDeferredLocked()
			send = true
		}
	case len(d.deferred) > 0:
		// Still inside a grace delay; keep order behind the interrupting
		// utterance.
		d.deferred = append(d.deferred, req)
	default:
		send = true
	}
	if !interrupt {
		d.stats.Queued++
	}
	d.mu.Unlock()

	d.logger.Debug("Dispatch", "id", req.id, "mode", mode, "kind", kind, "text", clip(req.text))

	if stop {
		d.stopEngine()
	}
	if send {
		d.send(req)
	}
	return index, nil
}

// resolveModeLocked picks the queue mode for a new utterance and reports
// whether it must not be interrupted once it plays. An uninterruptible
// utterance queued behind another keeps its protection. Must be called
// with d.mu held.
func (d *Dispatcher) resolveModeLocked(utt *ttypes.Utterance, kind event.Kind) (ttypes.QueueMode, bool) {
	if d.override != nil {
		mode := *d.override
		d.override = nil
		return mode, mode == ttypes.QueueModeUninterruptible
	}
	mode := declaredMode(utt, kind)
	if d.uninterruptibleLocked() {
		return ttypes.QueueModeQueue, mode == ttypes.QueueModeUninterruptible
	}
	if mode != ttypes.QueueModeComputeFromEventContext {
		return mode, mode == ttypes.QueueModeUninterruptible
	}
	if d.hasLastKind && kind == d.lastKind {
		return ttypes.QueueModeInterrupt, false
	}
	return ttypes.QueueModeQueue, false
}

// declaredMode returns the mode from the utterance metadata, falling back
// to UNINTERRUPTIBLE for notifications and COMPUTE_FROM_EVENT_CONTEXT
// otherwise.
func declaredMode(utt *ttypes.Utterance, kind event.Kind) ttypes.QueueMode {
	if mode, ok := utt.QueueMode(); ok && mode != ttypes.QueueModeComputeFromEventContext {
		return mode
	}
	if kind == event.KindNotificationStateChanged {
		return ttypes.QueueModeUninterruptible
	}
	return ttypes.QueueModeComputeFromEventContext
}

// Must be called with d.mu held.
func (d *Dispatcher) speakingLocked() bool {
	return d.lastCompleted < d.nextIndex-1
}

// Must be called with d.mu held.
func (d *Dispatcher) uninterruptibleLocked() bool {
	return d.uninterruptUntil > d.lastCompleted
}

// deferLocked replaces the deferred utterances with req and restarts the
// grace timer. Must be called with d.mu held.
func (d *Dispatcher) deferLocked(req request) {
	d.clearDeferredLocked()
	d.deferred = append(d.deferred, req)
	gen := d.graceGen
	d.graceTimer = time.AfterFunc(d.cfg.GraceDelay, func() { d.releaseDeferred(gen) })
}

// Must be called with d.mu held.
func (d *Dispatcher) clearDeferredLocked() {
	if d.graceTimer != nil {
		d.graceTimer.Stop()
		d.graceTimer = nil
	}
	d.graceGen++
	d.deferred = nil
}

// releaseDeferred sends the utterances held back by a grace delay.
func (d *Dispatcher) releaseDeferred(gen uint64) {
	d.speakMu.Lock()
	defer d.speakMu.Unlock()

	d.mu.Lock()
	if gen != d.graceGen || d.closed {
		d.mu.Unlock()
		return
	}
	batch := d.deferred
	d.deferred = nil
	d.graceTimer = nil
	d.mu.Unlock()

	for _, req := range batch {
		d.send(req)
	}
}

// send hands req to the engine. Must be called with speakMu held.
func (d *Dispatcher) send(req request) {
	params := map[string]string{ttypes.ParamUtteranceID: req.id}
	err := d.engine.Speak(req.text, ttypes.QueueModeQueue, params)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.stats.EngineErrors++
		d.logger.Debug("Engine rejected utterance", "id", req.id, "err", err)
		return
	}
	d.stats.Spoken++
}

// stopEngine stops the engine. Must be called with speakMu held.
func (d *Dispatcher) stopEngine() {
	if err := d.engine.Stop(); err != nil {
		d.logger.Debug("Engine stop failed", "err", err)
	}
	d.mu.Lock()
	d.stats.Stops++
	d.mu.Unlock()
}

// OnUtteranceCompleted records the completion of the utterance with the
// given id and runs every completion action registered at or below its
// index. Ids without the dispatcher's prefix are ignored.
func (d *Dispatcher) OnUtteranceCompleted(id string) {
	index, ok := d.parseID(id)
	if !ok {
		return
	}

	d.mu.Lock()
	d.stats.Completed++
	d.lastCompleted = max(d.lastCompleted, index)
	run := d.takeActionsLocked(index)
	d.mu.Unlock()

	for _, fn := range run {
		fn()
	}
}

// AddCompletionAction registers fn to run once the utterance at index
// completes. If that has already happened fn runs immediately.
func (d *Dispatcher) AddCompletionAction(index int, fn func()) {
	d.mu.Lock()
	if index <= d.lastCompleted {
		d.mu.Unlock()
		fn()
		return
	}
	d.actions[index] = append(d.actions[index], fn)
	d.mu.Unlock()
}

// takeActionsLocked removes and returns the actions registered at or below
// index, lowest index first. Must be called with d.mu held.
func (d *Dispatcher) takeActionsLocked(index int) []func() {
	var keys []int
	for k := range d.actions {
		if k <= index {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var run []func()
	for _, k := range keys {
		run = append(run, d.actions[k]...)
		delete(d.actions, k)
	}
	return run
}

func (d *Dispatcher) parseID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, d.cfg.IDPrefix)
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// Stop silences the engine and forgets all in-flight state: deferred
// utterances, the one-shot override, the uninterruptible window and any
// pending completion actions.
func (d *Dispatcher) Stop() {
	d.speakMu.Lock()
	defer d.speakMu.Unlock()

	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()

	d.stopEngine()
}

// Must be called with d.mu held.
func (d *Dispatcher) resetLocked() {
	d.clearDeferredLocked()
	d.override = nil
	d.uninterruptUntil = -1
	d.lastCompleted = d.nextIndex - 1
	clear(d.actions)
}

// Shutdown stops speech and shuts the engine down.
func (d *Dispatcher) Shutdown() error {
	d.speakMu.Lock()
	defer d.speakMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.resetLocked()
	d.closed = true
	d.mu.Unlock()

	_ = d.engine.Stop()
	if err := d.engine.Shutdown(); err != nil {
		return fmt.Errorf("shutdown engine: %w", err)
	}
	return nil
}

// State returns a snapshot of the dispatcher state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Current:       StateIdle,
		LastIndex:     d.nextIndex - 1,
		LastCompleted: d.lastCompleted,
		Deferred:      len(d.deferred),
	}
	for _, fns := range d.actions {
		s.PendingActions += len(fns)
	}
	switch {
	case d.uninterruptibleLocked():
		s.Current = StateSpeakingUninterruptible
	case d.speakingLocked():
		s.Current = StateSpeakingInterruptible
	}
	return s
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func clip(s string) string {
	return truncate.StringWithTail(s, 48, "…")
}

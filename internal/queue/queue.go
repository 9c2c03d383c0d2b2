package queue

import (
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// ErrQueueClosed is returned when operations are attempted on a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// Config controls debouncing.
type Config struct {
	// Timeout is the settle time after the last event before the queue is
	// drained.
	Timeout time.Duration

	// InCallTimeout replaces Timeout when the last event came from an
	// in-call package.
	InCallTimeout time.Duration

	// MaxEvents bounds the number of queued non-notification events.
	MaxEvents int

	// LockTimeout bounds the wait for the queue lock.
	LockTimeout time.Duration

	// EchoSources are packages whose same-kind bursts keep the first event
	// instead of the last.
	EchoSources []string

	// InCallPackages are packages whose events use InCallTimeout.
	InCallPackages []string
}

// DefaultConfig returns the default debouncing configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        100 * time.Millisecond,
		InCallTimeout:  500 * time.Millisecond,
		MaxEvents:      10,
		LockTimeout:    50 * time.Millisecond,
		EchoSources:    []string{"com.android.inputmethod.latin"},
		InCallPackages: []string{"com.android.phone"},
	}
}

// Sink receives drained events, oldest first.
type Sink func(ev *event.Event)

// Stats tracks queue activity
type Stats struct {
	Received     int64
	Appended     int64
	Coalesced    int64
	EchoDropped  int64
	Evicted      int64
	Drained      int64
	Flushes      int64
	LockTimeouts int64
	CurrentSize  int
	PeakSize     int
	LastFlush    time.Time
}

// EventQueue is the debouncer. It is Idle while empty and Accumulating
// while events wait for the settle timer. Every access to the backlog goes
// through a single lock that callers wait on for at most LockTimeout.
type EventQueue struct {
	cfg    Config
	sink   Sink
	echo   map[string]bool
	inCall map[string]bool

	// lock is a one-slot semaphore so acquisition can time out.
	lock   chan struct{}
	events []event.Event
	timer  *time.Timer
	gen    uint64
	closed bool
	stats  Stats

	// pending holds flushed events not yet handed to the sink; only the
	// goroutine that set draining consumes it.
	pending  []event.Event
	draining bool

	lockTimeouts atomic.Int64
	logger       *log.Logger
}

// NewEventQueue creates a queue that hands drained events to sink.
func NewEventQueue(cfg Config, sink Sink, logger *log.Logger) *EventQueue {
	if logger == nil {
		logger = log.Default()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InCallTimeout <= 0 {
		cfg.InCallTimeout = cfg.Timeout
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}

	q := &EventQueue{
		cfg:    cfg,
		sink:   sink,
		echo:   make(map[string]bool, len(cfg.EchoSources)),
		inCall: make(map[string]bool, len(cfg.InCallPackages)),
		lock:   make(chan struct{}, 1),
		logger: logger.WithPrefix("queue"),
	}
	for _, pkg := range cfg.EchoSources {
		q.echo[pkg] = true
	}
	for _, pkg := range cfg.InCallPackages {
		q.inCall[pkg] = true
	}
	return q
}

// Add snapshots ev and queues it. It returns a QUEUE_LOCK_TIMEOUT error
// when the lock could not be taken in time; the event is then dropped.
func (q *EventQueue) Add(ev *event.Event) error {
	snap := event.Snapshot(ev)

	if !q.tryAcquire() {
		q.lockTimeouts.Add(1)
		return ttypes.NewPipelineError(ttypes.ErrorCodeQueueLockTimeout,
			"event dropped", ttypes.ErrQueueLockTimeout).
			WithContext("kind", snap.Kind.String())
	}
	defer q.release()

	if q.closed {
		return ErrQueueClosed
	}
	q.stats.Received++

	q.enqueueLocked(snap)
	q.enforceBoundLocked()
	q.armLocked(snap.PackageName)

	q.stats.CurrentSize = len(q.events)
	q.stats.PeakSize = max(q.stats.PeakSize, len(q.events))
	return nil
}

// enqueueLocked coalesces or appends. Must be called with the lock held.
func (q *EventQueue) enqueueLocked(snap event.Event) {
	if n := len(q.events); n > 0 {
		last := &q.events[n-1]
		if last.Kind == snap.Kind && (!snap.IsNotification() || event.SameNotification(last, &snap)) {
			if q.echo[snap.PackageName] && last.PackageName == snap.PackageName {
				q.stats.EchoDropped++
				return
			}
			*last = snap
			q.stats.Coalesced++
			return
		}
	}
	q.events = append(q.events, snap)
	q.stats.Appended++
}

// enforceBoundLocked evicts the oldest non-notification events beyond
// MaxEvents. Must be called with the lock held.
func (q *EventQueue) enforceBoundLocked() {
	count := 0
	for i := range q.events {
		if !q.events[i].IsNotification() {
			count++
		}
	}
	for count > q.cfg.MaxEvents {
		i := slices.IndexFunc(q.events, func(e event.Event) bool { return !e.IsNotification() })
		q.events = slices.Delete(q.events, i, i+1)
		q.stats.Evicted++
		count--
	}
}

// armLocked resets the settle timer. Must be called with the lock held.
func (q *EventQueue) armLocked(pkg string) {
	timeout := q.cfg.Timeout
	if q.inCall[pkg] {
		timeout = q.cfg.InCallTimeout
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.gen++
	gen := q.gen
	q.timer = time.AfterFunc(timeout, func() { q.flush(gen) })
}

// flush moves the backlog to the drain list if gen is still the current
// timer generation, then drains unless another flush already is.
func (q *EventQueue) flush(gen uint64) {
	if !q.tryAcquire() {
		q.lockTimeouts.Add(1)
		q.logger.Debug("Queue lock timeout on flush, retrying")
		time.AfterFunc(q.cfg.Timeout, func() { q.flush(gen) })
		return
	}

	if q.closed || gen != q.gen {
		q.release()
		return
	}
	q.pending = append(q.pending, q.events...)
	q.events = nil
	q.timer = nil
	q.stats.Flushes++
	q.stats.CurrentSize = 0
	q.stats.LastFlush = time.Now()

	if q.draining {
		q.release()
		return
	}
	q.draining = true
	q.release()

	// Events are taken one at a time so a Clear during the drain drops
	// whatever the sink has not seen yet.
	for {
		q.acquire()
		if len(q.pending) == 0 {
			q.pending = nil
			q.draining = false
			q.release()
			return
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		q.stats.Drained++
		q.release()

		q.sink(&ev)
	}
}

// Clear drops every queued event and cancels the settle timer.
func (q *EventQueue) Clear() {
	q.acquire()
	defer q.release()
	q.resetLocked()
}

// Close clears the queue and rejects further events.
func (q *EventQueue) Close() {
	q.acquire()
	defer q.release()
	q.resetLocked()
	q.closed = true
}

func (q *EventQueue) resetLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.gen++
	q.events = nil
	q.pending = nil
	q.stats.CurrentSize = 0
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.acquire()
	defer q.release()
	return len(q.events)
}

// Idle reports whether no events are queued or being handed to the sink.
func (q *EventQueue) Idle() bool {
	q.acquire()
	defer q.release()
	return len(q.events) == 0 && len(q.pending) == 0 && !q.draining
}

// Snapshot returns a copy of the queued events, oldest first.
func (q *EventQueue) Snapshot() []event.Event {
	q.acquire()
	defer q.release()
	return slices.Clone(q.events)
}

// Stats returns queue statistics.
func (q *EventQueue) Stats() Stats {
	q.acquire()
	defer q.release()
	stats := q.stats
	stats.LockTimeouts = q.lockTimeouts.Load()
	return stats
}

func (q *EventQueue) tryAcquire() bool {
	select {
	case q.lock <- struct{}{}:
		return true
	default:
	}

	t := time.NewTimer(q.cfg.LockTimeout)
	defer t.Stop()
	select {
	case q.lock <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (q *EventQueue) acquire() {
	q.lock <- struct{}{}
}

func (q *EventQueue) release() {
	<-q.lock
}

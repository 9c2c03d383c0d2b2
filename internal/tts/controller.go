package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/time/rate"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/notify"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/processor"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/queue"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/speech"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

var (
	// ErrControllerNotStarted is returned when operations are attempted before Start()
	ErrControllerNotStarted = errors.New("controller not started")

	// ErrControllerAlreadyStarted is returned when Start() is called multiple times
	ErrControllerAlreadyStarted = errors.New("controller already started")

	// ErrNoEngineConfigured is returned when no speech engine was selected
	ErrNoEngineConfigured = errors.New("no speech engine configured")

	// ErrInvalidEngine is returned for an unknown engine name
	ErrInvalidEngine = errors.New("invalid speech engine")
)

const drainPoll = 20 * time.Millisecond

// Deps are the collaborators the controller wires together.
type Deps struct {
	// Engine receives the dispatched utterances. Required.
	Engine ttypes.SpeechEngine

	// DefaultRules is the rule set consulted when no source override matches.
	DefaultRules rules.RuleSet

	// Loader loads per-source override sets on first contact. Optional.
	Loader processor.Loader

	// Classes resolves widget class ancestry. Optional.
	Classes *rules.ClassResolver

	// Notifications is the shared notification cache. A new one is created
	// when nil.
	Notifications *notify.Cache

	Logger *log.Logger
}

// Controller owns the pipeline: events are debounced by the queue, matched
// by the processor, deduplicated against the notification cache and handed
// to the speech dispatcher.
type Controller struct {
	cfg    Config
	logger *log.Logger

	classes       *rules.ClassResolver
	processor     *processor.Processor
	notifications *notify.Cache
	queue         *queue.EventQueue
	dispatcher    *speech.Dispatcher
	summary       *rate.Limiter

	// mu guards the ingestion state below
	mu        sync.Mutex
	state     State
	lastEvent *event.Event
	activity  string
	stats     ControllerStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller from cfg and deps.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Notifications == nil {
		deps.Notifications = notify.NewCache()
	}
	if cfg.SummaryBurst <= 0 {
		cfg.SummaryBurst = 1
	}

	var opts []processor.Option
	if deps.Classes != nil {
		opts = append(opts, processor.WithClassResolver(deps.Classes))
	}

	limit := rate.Inf
	if cfg.SummaryInterval > 0 {
		limit = rate.Every(cfg.SummaryInterval)
	}

	c := &Controller{
		cfg:           cfg,
		logger:        logger.WithPrefix("pipeline"),
		classes:       deps.Classes,
		processor:     processor.New(deps.DefaultRules, deps.Loader, logger, opts...),
		notifications: deps.Notifications,
		dispatcher:    speech.NewDispatcher(deps.Engine, cfg.Speech, logger),
		summary:       rate.NewLimiter(limit, cfg.SummaryBurst),
	}
	c.queue = queue.NewEventQueue(cfg.Queue, c.processEvent, logger)
	return c, nil
}

// Start marks the pipeline as running. The pipeline is stopped when ctx
// is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrControllerAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateRunning
	c.stats.StartTime = time.Now()
	c.stats.LastActivity = c.stats.StartTime

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		c.shutdown()
	}()

	c.logger.Debug("Pipeline started")
	return nil
}

// Stop halts the pipeline and shuts the engine down. Waiting feeds return.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	return nil
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.queue.Close()
	if err := c.dispatcher.Shutdown(); err != nil {
		c.logger.Warn("Engine shutdown failed", "err", err)
	}
	c.logger.Debug("Pipeline stopped")
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleEvent ingests one event from the host. The event is copied; the
// caller may reuse it once HandleEvent returns. Transient failures are
// logged and swallowed.
func (c *Controller) HandleEvent(ev *event.Event) error {
	if ev == nil {
		return ttypes.NewPipelineError(ttypes.ErrorCodeInvalidInput, "nil event", nil)
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrControllerNotStarted
	}
	c.stats.EventsReceived++
	c.stats.LastActivity = time.Now()

	if c.cfg.DropDuplicates && c.lastEvent != nil && event.Equal(c.lastEvent, ev) {
		c.stats.DuplicatesDropped++
		c.mu.Unlock()
		return nil
	}
	snap := event.Snapshot(ev)
	c.lastEvent = &snap
	if ev.Kind == event.KindWindowStateChanged {
		c.activity = ev.ClassName
	}
	c.mu.Unlock()

	err := c.queue.Add(ev)
	switch {
	case err == nil:
		return nil
	case ttypes.HasCode(err, ttypes.ErrorCodeQueueLockTimeout):
		c.mu.Lock()
		c.stats.LockTimeouts++
		c.mu.Unlock()
		c.logger.Debug("Event dropped", "kind", ev.Kind, "err", err)
		return nil
	default:
		return err
	}
}

// processEvent is the queue sink: it runs on the draining path, one event
// at a time.
func (c *Controller) processEvent(ev *event.Event) {
	c.mu.Lock()
	activity := c.activity
	c.stats.EventsProcessed++
	c.mu.Unlock()

	utt, ok := c.processor.Process(ev, activity)
	if !ok {
		c.mu.Lock()
		c.stats.Unmatched++
		c.mu.Unlock()
		return
	}

	if !c.admitNotification(ev) {
		c.mu.Lock()
		c.stats.NotificationsSilenced++
		c.mu.Unlock()
		return
	}

	c.speak(utt, ev.Kind)
}

// admitNotification toggles a notification event in the cache and
// reports whether it should be spoken. A repeat of a pending message
// clears it silently. Other events are always admitted.
func (c *Controller) admitNotification(ev *event.Event) bool {
	if !ev.IsNotification() || ev.Notification == nil {
		return true
	}
	if notify.IsPhoneCall(ev.Notification.Icon) {
		return true
	}
	typ := notify.TypeForIcon(ev.Notification.Icon)
	return c.notifications.Toggle(typ, ev.AggregatedText(false))
}

func (c *Controller) speak(utt *ttypes.Utterance, kind event.Kind) {
	_, err := c.dispatcher.Speak(utt, kind)
	if err == nil {
		return
	}
	if ttypes.IsEngineUnavailable(err) {
		c.logger.Debug("Speech dropped", "text", truncate.StringWithTail(utt.String(), 48, "…"), "err", err)
		return
	}
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
	c.logger.Warn("Speech failed", "err", err)
}

// AnnounceSummary speaks the notification summary as an uninterruptible
// utterance that interrupts current speech. It reports false when the
// request was rate limited or there is nothing to announce.
func (c *Controller) AnnounceSummary() bool {
	c.mu.Lock()
	c.stats.SummaryRequests++
	c.mu.Unlock()

	if !c.summary.Allow() {
		c.mu.Lock()
		c.stats.SummaryLimited++
		c.mu.Unlock()
		c.logger.Info("Summary request rate limited", "interval", c.cfg.SummaryInterval)
		return false
	}

	text := c.notifications.Summary()
	if text == "" {
		return false
	}

	utt := ttypes.NewUtterance()
	utt.Text.WriteString(text)
	c.dispatcher.SetNextQueueMode(ttypes.QueueModeUninterruptible)
	c.speak(utt, event.KindNotificationStateChanged)
	return true
}

// StopAll clears the event queue, cancels the pending flush and silences
// the engine. Events already pulled from the queue finish processing.
func (c *Controller) StopAll() {
	c.queue.Clear()
	c.dispatcher.Stop()
}

// RequestUninterruptibleNext makes the next utterance uninterruptible.
func (c *Controller) RequestUninterruptibleNext() {
	c.dispatcher.SetNextQueueMode(ttypes.QueueModeUninterruptible)
}

// ClearNotifications empties the notification cache.
func (c *Controller) ClearNotifications() {
	c.notifications.Clear()
}

// SourceAdded loads the override rules of a newly installed source.
func (c *Controller) SourceAdded(pkg string) {
	c.reloadSource(pkg)
}

// SourceUpdated reloads the override rules of an updated source.
func (c *Controller) SourceUpdated(pkg string) {
	c.reloadSource(pkg)
}

func (c *Controller) reloadSource(pkg string) {
	if c.classes != nil {
		c.classes.Uninstall(pkg)
	}
	if err := c.processor.ReloadOverride(pkg); err != nil {
		c.logger.Warn("Could not reload source rules", "package", pkg, "err", err)
		return
	}
	c.logger.Debug("Source rules reloaded", "package", pkg)
}

// SourceRemoved evicts the override rules and class hierarchy of a source.
func (c *Controller) SourceRemoved(pkg string) {
	c.processor.RemoveOverride(pkg)
	if c.classes != nil {
		c.classes.Uninstall(pkg)
	}
	c.logger.Debug("Source removed", "package", pkg)
}

// Overrides returns the packages with loaded override rules.
func (c *Controller) Overrides() []string {
	return c.processor.Overrides()
}

// Activity returns the class name of the current window.
func (c *Controller) Activity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activity
}

// Dispatcher exposes the speech dispatcher, e.g. for completion actions.
func (c *Controller) Dispatcher() *speech.Dispatcher {
	return c.dispatcher
}

// Stats returns pipeline statistics.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	stats.Queue = c.queue.Stats()
	stats.Speech = c.dispatcher.Stats()
	stats.Speaking = c.dispatcher.State().Current
	return stats
}

// Drain waits until queued events have been processed and the engine has
// finished speaking, or ctx is done.
func (c *Controller) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		if c.queue.Idle() && !c.dispatcher.State().IsSpeaking() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Serve reads the JSON-lines feed from r and applies each message until
// the feed ends, ctx is cancelled or the controller is stopped. Malformed
// lines are logged and skipped.
func (c *Controller) Serve(ctx context.Context, r io.Reader) error {
	type result struct {
		msg event.Message
		err error
	}
	msgs := make(chan result)
	done := make(chan struct{})
	defer close(done)

	go func() {
		dec := event.NewDecoder(r)
		for {
			msg, err := dec.Next()
			select {
			case msgs <- result{msg, err}:
			case <-done:
				return
			}
			if err != nil && !isLineError(err) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-msgs:
			switch {
			case res.err == nil:
				if err := c.apply(res.msg); err != nil {
					return err
				}
			case errors.Is(res.err, io.EOF):
				return nil
			case isLineError(res.err):
				c.logger.Warn("Skipping feed line", "err", res.err)
			default:
				return fmt.Errorf("read feed: %w", res.err)
			}
		}
	}
}

// apply handles one feed message.
func (c *Controller) apply(msg event.Message) error {
	if msg.Event != nil {
		err := c.HandleEvent(msg.Event)
		if errors.Is(err, ErrControllerNotStarted) || errors.Is(err, queue.ErrQueueClosed) {
			return err
		}
		if err != nil {
			c.logger.Warn("Event rejected", "err", err)
		}
		return nil
	}

	switch msg.Control {
	case event.ControlStop:
		c.StopAll()
	case event.ControlSummary:
		c.AnnounceSummary()
	case event.ControlNextUninterruptible:
		c.RequestUninterruptibleNext()
	case event.ControlSourceAdded:
		c.SourceAdded(msg.Package)
	case event.ControlSourceUpdated:
		c.SourceUpdated(msg.Package)
	case event.ControlSourceRemoved:
		c.SourceRemoved(msg.Package)
	case event.ControlClearNotifications:
		c.ClearNotifications()
	default:
		c.logger.Warn("Unknown control", "control", msg.Control)
	}
	return nil
}

// isLineError reports whether err concerns a single bad line.
func isLineError(err error) bool {
	return errors.Is(err, event.ErrMalformedLine) || errors.Is(err, event.ErrEmptyMessage)
}

package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/time/rate"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/cache"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Speed limits.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
)

// maxAudioSize bounds the PCM produced for one utterance.
const maxAudioSize = 10 * 1024 * 1024

// AudioPlayer plays PCM, blocking until playback ends.
type AudioPlayer interface {
	Play(ctx context.Context, pcm []byte) error
	Stop() error
	Close() error
}

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Binary is the piper executable (defaults to "piper" on PATH)
	Binary string

	// Model file path (required)
	ModelPath string

	// Speaker id for multi-speaker models (optional)
	Speaker string

	// Speed multiplier, 0.5 to 2.0
	Speed float64

	// Timeout bounds one synthesis run
	Timeout time.Duration

	// SynthesisRate limits synthesis runs per second; zero is unlimited
	SynthesisRate float64

	// Cache holds synthesized audio (optional)
	Cache *cache.AudioCache

	Logger *log.Logger
}

type utterance struct {
	text string
	id   string
}

// PiperEngine speaks through a fresh Piper process per utterance and plays
// the raw PCM output. Utterances are spoken one at a time in arrival order
// by a single worker goroutine.
type PiperEngine struct {
	binary      string
	modelPath   string
	speaker     string
	lengthScale float64
	timeout     time.Duration

	player  AudioPlayer
	cache   *cache.AudioCache
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	pending  []utterance
	cancel   context.CancelFunc
	gen      uint64
	listener func(id string)
	closed   bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewPiperEngine creates a new Piper engine playing through player.
func NewPiperEngine(config PiperConfig, player AudioPlayer) (*PiperEngine, error) {
	if player == nil {
		return nil, errors.New("player is required")
	}
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	modelPath, err := homedir.Expand(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("expand model path: %w", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.Speed == 0 {
		config.Speed = DefaultSpeed
	}
	if config.Speed < MinSpeed || config.Speed > MaxSpeed {
		return nil, fmt.Errorf("speed must be between %.1f and %.1f, got %.2f", MinSpeed, MaxSpeed, config.Speed)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	limit := rate.Inf
	if config.SynthesisRate > 0 {
		limit = rate.Limit(config.SynthesisRate)
	}

	e := &PiperEngine{
		binary:      config.Binary,
		modelPath:   modelPath,
		speaker:     config.Speaker,
		lengthScale: LengthScale(config.Speed),
		timeout:     config.Timeout,
		player:      player,
		cache:       config.Cache,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      config.Logger.WithPrefix("piper"),
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go e.run()
	return e, nil
}

// LengthScale converts a speed multiplier to Piper's length scale.
// Speed 0.5 = half speed (scale 2.0), 2.0 = double speed (scale 0.5).
func LengthScale(speed float64) float64 {
	speed = min(max(speed, MinSpeed), MaxSpeed)
	return 1.0 / speed
}

// Speak queues text. QueueModeInterrupt flushes the engine first; every
// other mode appends.
func (e *PiperEngine) Speak(text string, mode ttypes.QueueMode, params map[string]string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ttypes.NewPipelineError(ttypes.ErrorCodeInvalidInput, "empty utterance", nil)
	}
	if mode == ttypes.QueueModeInterrupt {
		_ = e.Stop()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ttypes.ErrEngineUnavailable
	}
	e.pending = append(e.pending, utterance{text: text, id: params[ttypes.ParamUtteranceID]})
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop drops queued utterances and interrupts synthesis and playback.
// Interrupted utterances do not report completion.
func (e *PiperEngine) Stop() error {
	e.mu.Lock()
	e.gen++
	e.pending = nil
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	return e.player.Stop()
}

// Shutdown stops the worker and releases the player and cache.
func (e *PiperEngine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.Stop()
	close(e.quit)
	<-e.done

	var errs []error
	if err := e.player.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close player: %w", err))
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsAvailable reports whether the engine accepts utterances.
func (e *PiperEngine) IsAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// SetCompletionListener registers the completion callback. It is called
// from the worker goroutine.
func (e *PiperEngine) SetCompletionListener(fn func(id string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

func (e *PiperEngine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case <-e.wake:
		}
		for e.next() {
		}
	}
}

// next speaks the oldest pending utterance. It returns false when the
// queue is empty.
func (e *PiperEngine) next() bool {
	e.mu.Lock()
	if len(e.pending) == 0 || e.closed {
		e.mu.Unlock()
		return false
	}
	u := e.pending[0]
	e.pending = e.pending[1:]
	gen := e.gen
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	err := e.speakOne(ctx, u)

	e.mu.Lock()
	stale := gen != e.gen
	listener := e.listener
	e.mu.Unlock()

	if stale {
		return true
	}
	if err != nil {
		// A failed utterance still completes so callers waiting on it move on.
		e.logger.Warn("Utterance failed", "id", u.id, "err", err)
	}
	if listener != nil && u.id != "" {
		listener(u.id)
	}
	return true
}

func (e *PiperEngine) speakOne(ctx context.Context, u utterance) error {
	pcm, err := e.Synthesize(ctx, u.text)
	if err != nil {
		return err
	}
	return e.player.Play(ctx, pcm)
}

// Synthesize converts text to raw 16-bit PCM using Piper.
func (e *PiperEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cache.AudioKey(text, e.voice(), e.lengthScale)
	if e.cache != nil {
		if audio, ok := e.cache.Get(key); ok {
			return audio, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	args := []string{
		"--model", e.modelPath,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(e.lengthScale, 'f', 2, 64),
	}
	if e.speaker != "" {
		args = append(args, "--speaker", e.speaker)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, args...)
	// Pre-configured stdin: Piper reads the text before we could write it.
	cmd.Stdin = strings.NewReader(text)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("synthesis interrupted: %w", ctx.Err())
		}
		return nil, ttypes.NewPipelineError(ttypes.ErrorCodeEngineFailure, "piper failed", err).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}

	audio := stdout.Bytes()
	if len(audio) == 0 {
		return nil, ttypes.NewPipelineError(ttypes.ErrorCodeEngineFailure, "piper produced no audio", nil).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}
	if len(audio) > maxAudioSize {
		return nil, fmt.Errorf("piper output too large: %s (max %s)",
			humanize.IBytes(uint64(len(audio))), humanize.IBytes(maxAudioSize))
	}

	e.logger.Debug("Synthesized", "bytes", humanize.IBytes(uint64(len(audio))), "took", time.Since(start))

	if e.cache != nil {
		e.cache.Put(key, audio)
	}
	return audio, nil
}

func (e *PiperEngine) voice() string {
	return e.modelPath + "#" + e.speaker
}

// Pending returns the number of queued utterances.
func (e *PiperEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Ensure PiperEngine implements the SpeechEngine interface
var _ ttypes.SpeechEngine = (*PiperEngine)(nil)

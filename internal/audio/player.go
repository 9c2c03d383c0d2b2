package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// ErrPlayerClosed is returned by Play after Close
	ErrPlayerClosed = errors.New("player is closed")

	// ErrStopped is returned by Play when Stop interrupted playback
	ErrStopped = errors.New("playback stopped")

	// ErrEmptyAudio is returned for zero-length audio
	ErrEmptyAudio = errors.New("audio data is empty")
)

// PlayerState represents the player state
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int           // Hz, must match the synthesizer output
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // Device buffer length
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 22050, // Piper medium voices
		Channels:   1,
		BufferSize: 50 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c PlayerConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	if c.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// Duration returns the playback length of 16-bit PCM audio.
func (c PlayerConfig) Duration(pcm []byte) time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(pcm) / (c.Channels * 2)
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Player plays 16-bit little-endian PCM through oto.
// One utterance plays at a time; Play blocks until it ends.
type Player struct {
	context *oto.Context
	config  PlayerConfig

	// mu guards the active playback
	mu     sync.Mutex
	player *oto.Player
	audio  []byte // must stay alive during playback
	stop   chan struct{}

	state  atomic.Int32
	volume atomic.Uint64 // float64 bits
}

// NewPlayer creates a new audio player with the specified configuration.
// oto allows a single context per process, so create one Player only.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p := &Player{
		context: ctx,
		config:  config,
	}
	p.state.Store(int32(StateStopped))
	p.volume.Store(math.Float64bits(1.0))
	return p, nil
}

// Play plays pcm and returns when playback finished, ctx was cancelled
// or Stop was called. A new Play stops the previous one.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	if PlayerState(p.state.Load()) == StateClosed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.stopLocked()

	// Own a copy so the caller may reuse its buffer.
	audio := bytes.Clone(pcm)
	player := p.context.NewPlayer(bytes.NewReader(audio))
	player.SetVolume(math.Float64frombits(p.volume.Load()))

	stop := make(chan struct{})
	p.player = player
	p.audio = audio
	p.stop = stop
	p.state.Store(int32(StatePlaying))
	player.Play()
	p.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(player)
			return ctx.Err()
		case <-stop:
			return ErrStopped
		case <-ticker.C:
			if !player.IsPlaying() && player.BufferedSize() == 0 {
				p.finish(player)
				return nil
			}
		}
	}
}

// finish releases player if it is still the active one.
func (p *Player) finish(player *oto.Player) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == player {
		p.stopLocked()
	}
}

// must be called with lock held
func (p *Player) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
	}
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.audio = nil
	if PlayerState(p.state.Load()) == StatePlaying {
		p.state.Store(int32(StateStopped))
	}
}

// Stop interrupts the current playback, if any.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Config returns the player configuration.
func (p *Player) Config() PlayerConfig {
	return p.config
}

// Close stops playback. oto has no way to release its context, so the
// device stays open until the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

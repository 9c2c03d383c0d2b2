package audio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback without producing sound. Each Play lasts
// the PCM duration scaled by the delay factor.
type MockPlayer struct {
	config PlayerConfig

	mu          sync.Mutex
	stop        chan struct{}
	played      [][]byte
	delayFactor float64
	failNext    error
	closed      bool

	state atomic.Int32

	// Metrics for testing
	playCount     atomic.Int64
	stopCount     atomic.Int64
	completeCount atomic.Int64
}

// NewMockPlayer creates a mock player for the given format.
func NewMockPlayer(config PlayerConfig) *MockPlayer {
	mp := &MockPlayer{
		config:      config,
		delayFactor: 1.0,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// DefaultMockPlayer creates a mock player with the default format.
func DefaultMockPlayer() *MockPlayer {
	return NewMockPlayer(DefaultPlayerConfig())
}

// Play records pcm and blocks for its simulated duration.
func (mp *MockPlayer) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	mp.mu.Lock()
	if mp.closed {
		mp.mu.Unlock()
		return ErrPlayerClosed
	}
	if err := mp.failNext; err != nil {
		mp.failNext = nil
		mp.mu.Unlock()
		return err
	}
	mp.stopLocked()

	stop := make(chan struct{})
	mp.stop = stop
	mp.played = append(mp.played, bytes.Clone(pcm))
	duration := time.Duration(float64(mp.config.Duration(pcm)) * mp.delayFactor)
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)
	mp.mu.Unlock()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		mp.mu.Lock()
		if mp.stop == stop {
			mp.stop = nil
			mp.state.Store(int32(StateStopped))
		}
		mp.mu.Unlock()
		mp.completeCount.Add(1)
		return nil
	case <-stop:
		return ErrStopped
	case <-ctx.Done():
		mp.mu.Lock()
		if mp.stop == stop {
			mp.stopLocked()
		}
		mp.mu.Unlock()
		return ctx.Err()
	}
}

// must be called with lock held
func (mp *MockPlayer) stopLocked() {
	if mp.stop != nil {
		close(mp.stop)
		mp.stop = nil
		mp.stopCount.Add(1)
	}
	if PlayerState(mp.state.Load()) == StatePlaying {
		mp.state.Store(int32(StateStopped))
	}
}

// Stop interrupts the current playback.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	return nil
}

// IsPlaying returns whether a simulated playback is in progress.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// Close stops playback and rejects further Play calls.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.closed = true
	mp.state.Store(int32(StateClosed))
	return nil
}

// SetDelayFactor scales simulated playback time; 0 completes at once.
func (mp *MockPlayer) SetDelayFactor(factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.delayFactor = max(factor, 0)
}

// FailNext makes the next Play return err.
func (mp *MockPlayer) FailNext(err error) {
	if err == nil {
		err = errors.New("simulated playback error")
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failNext = err
}

// Played returns copies of every played buffer, oldest first.
func (mp *MockPlayer) Played() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([][]byte, len(mp.played))
	copy(out, mp.played)
	return out
}

// MockPlayerMetrics contains counters for testing.
type MockPlayerMetrics struct {
	PlayCount     int64
	StopCount     int64
	CompleteCount int64
}

// Metrics returns the playback counters.
func (mp *MockPlayer) Metrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:     mp.playCount.Load(),
		StopCount:     mp.stopCount.Load(),
		CompleteCount: mp.completeCount.Load(),
	}
}

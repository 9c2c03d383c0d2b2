package engines

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/audio"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/cache"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// fakePiper writes a shell script that swallows stdin, logs each run to
// runs.log and prints 4410 bytes of silence (0.1s at 22050Hz mono).
func fakePiper(t *testing.T) (binary, model, runLog string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake piper needs a POSIX shell")
	}

	dir := t.TempDir()
	model = filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(model, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}

	runLog = filepath.Join(dir, "runs.log")
	binary = filepath.Join(dir, "piper")
	script := "#!/bin/sh\ncat > /dev/null\necho run >> " + runLog + "\nhead -c 4410 /dev/zero\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return binary, model, runLog
}

func runs(t *testing.T, runLog string) int {
	t.Helper()
	data, err := os.ReadFile(runLog)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "run")
}

func TestPiperEngine_NewPiperEngine(t *testing.T) {
	_, model, _ := fakePiper(t)
	player := audio.DefaultMockPlayer()

	tests := []struct {
		name    string
		config  PiperConfig
		wantErr bool
	}{
		{
			name:   "valid config",
			config: PiperConfig{ModelPath: model},
		},
		{
			name:    "missing model path",
			config:  PiperConfig{},
			wantErr: true,
		},
		{
			name:    "non-existent model",
			config:  PiperConfig{ModelPath: "/non/existent/model.onnx"},
			wantErr: true,
		},
		{
			name:    "speed out of range",
			config:  PiperConfig{ModelPath: model, Speed: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewPiperEngine(tt.config, player)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPiperEngine() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if engine != nil {
				_ = engine.Shutdown()
			}
		})
	}
}

func TestLengthScale(t *testing.T) {
	tests := []struct {
		speed float64
		want  float64
	}{
		{1.0, 1.0},
		{2.0, 0.5},
		{0.5, 2.0},
		{4.0, 0.5},
		{0.1, 2.0},
	}
	for _, tt := range tests {
		if got := LengthScale(tt.speed); got != tt.want {
			t.Errorf("LengthScale(%v): expected %v, got %v", tt.speed, tt.want, got)
		}
	}
}

func TestPiperEngine_SpeakReportsCompletion(t *testing.T) {
	binary, model, _ := fakePiper(t)
	player := audio.DefaultMockPlayer()
	player.SetDelayFactor(0)

	engine, err := NewPiperEngine(PiperConfig{Binary: binary, ModelPath: model}, player)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer engine.Shutdown()

	done := make(chan string, 2)
	engine.SetCompletionListener(func(id string) { done <- id })

	_ = engine.Speak("hello", ttypes.QueueModeQueue, params("talkback_0"))
	_ = engine.Speak("world", ttypes.QueueModeQueue, params("talkback_1"))

	for _, want := range []string{"talkback_0", "talkback_1"} {
		select {
		case id := <-done:
			if id != want {
				t.Errorf("Expected %s, got %s", want, id)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}

	played := player.Played()
	if len(played) != 2 || len(played[0]) != 4410 {
		t.Errorf("Expected two 4410-byte buffers, got %d buffers", len(played))
	}
}

func TestPiperEngine_Cache(t *testing.T) {
	binary, model, runLog := fakePiper(t)

	ac, err := cache.NewAudioCache(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	engine, err := NewPiperEngine(PiperConfig{Binary: binary, ModelPath: model, Cache: ac}, audio.DefaultMockPlayer())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer engine.Shutdown()

	for i := 0; i < 3; i++ {
		pcm, err := engine.Synthesize(context.Background(), "same text")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(pcm) != 4410 {
			t.Errorf("Expected 4410 bytes, got %d", len(pcm))
		}
	}

	if n := runs(t, runLog); n != 1 {
		t.Errorf("Expected piper to run once, ran %d times", n)
	}
	mem, _ := ac.Stats()
	if mem.Hits != 2 {
		t.Errorf("Expected 2 cache hits, got %d", mem.Hits)
	}
}

func TestPiperEngine_StopDropsPending(t *testing.T) {
	binary, model, _ := fakePiper(t)
	player := audio.DefaultMockPlayer()
	// 0.1s of audio plays for 2s.
	player.SetDelayFactor(20)

	engine, err := NewPiperEngine(PiperConfig{Binary: binary, ModelPath: model}, player)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer engine.Shutdown()

	done := make(chan string, 4)
	engine.SetCompletionListener(func(id string) { done <- id })

	_ = engine.Speak("first", ttypes.QueueModeQueue, params("a"))
	_ = engine.Speak("second", ttypes.QueueModeQueue, params("b"))

	deadline := time.After(5 * time.Second)
	for !player.IsPlaying() {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for playback")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := engine.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if engine.Pending() != 0 {
		t.Errorf("Expected no pending utterances, got %d", engine.Pending())
	}

	select {
	case id := <-done:
		t.Errorf("Expected no completion after Stop, got %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPiperEngine_Unavailable(t *testing.T) {
	_, model, _ := fakePiper(t)
	engine, err := NewPiperEngine(PiperConfig{ModelPath: model}, audio.DefaultMockPlayer())
	if err != nil {
		t.Fatal(err)
	}

	if !engine.IsAvailable() {
		t.Error("Expected new engine to be available")
	}
	if err := engine.Shutdown(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if engine.IsAvailable() {
		t.Error("Expected engine to be unavailable after shutdown")
	}
	if err := engine.Speak("x", ttypes.QueueModeQueue, nil); !ttypes.IsEngineUnavailable(err) {
		t.Errorf("Expected engine unavailable, got %v", err)
	}
}

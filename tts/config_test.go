package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Speech.Engine != "mock" {
		t.Errorf("Default engine should be mock, got %s", cfg.Speech.Engine)
	}
	if cfg.Speech.GraceDelay != 0 {
		t.Errorf("Default grace delay should be zero, got %v", cfg.Speech.GraceDelay)
	}
	if cfg.Rules.Watch {
		t.Error("Watching should be disabled by default")
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid engine",
			modify: func(c *Config) {
				c.Speech.Engine = "espeak"
			},
			wantErr: true,
			errMsg:  "invalid speech engine",
		},
		{
			name: "no engine",
			modify: func(c *Config) {
				c.Speech.Engine = ""
			},
			wantErr: true,
			errMsg:  "no speech engine configured",
		},
		{
			name: "case insensitive engine",
			modify: func(c *Config) {
				c.Speech.Engine = "MOCK"
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.LogLevel = "verbose"
			},
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name: "zero timeout",
			modify: func(c *Config) {
				c.Debounce.Timeout = 0
			},
			wantErr: true,
			errMsg:  "timeout must be positive",
		},
		{
			name: "in-call timeout shorter than timeout",
			modify: func(c *Config) {
				c.Debounce.InCallTimeout = 10 * time.Millisecond
			},
			wantErr: true,
			errMsg:  "cannot be shorter",
		},
		{
			name: "max events too small",
			modify: func(c *Config) {
				c.Debounce.MaxEvents = 0
			},
			wantErr: true,
			errMsg:  "max_events must be at least 1",
		},
		{
			name: "grace delay too long",
			modify: func(c *Config) {
				c.Speech.GraceDelay = 5 * time.Second
			},
			wantErr: true,
			errMsg:  "grace_delay must be between",
		},
		{
			name: "volume too high",
			modify: func(c *Config) {
				c.Audio.Volume = 3.0
			},
			wantErr: true,
			errMsg:  "volume must be between",
		},
		{
			name: "invalid sample rate",
			modify: func(c *Config) {
				c.Audio.SampleRate = 1000
			},
			wantErr: true,
			errMsg:  "audio config",
		},
		{
			name: "piper without model",
			modify: func(c *Config) {
				c.Speech.Engine = "piper"
			},
			wantErr: true,
			errMsg:  "piper model cannot be empty",
		},
		{
			name: "piper speed out of range",
			modify: func(c *Config) {
				c.Speech.Engine = "piper"
				c.Piper.Model = "voice.onnx"
				c.Piper.Speed = 4
			},
			wantErr: true,
			errMsg:  "speed must be between",
		},
		{
			name: "compression out of range",
			modify: func(c *Config) {
				c.Cache.Compression = 30
			},
			wantErr: true,
			errMsg:  "compression must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestConfig_ValidateNormalizesEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Speech.Engine = "Dry-Run"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Speech.Engine != "mock" {
		t.Errorf("Expected mock, got %s", cfg.Speech.Engine)
	}
}

// TestLoadConfigFromViper tests loading configuration from Viper.
func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("rules.overrides", "/etc/eyesfree/rules")
	viper.Set("rules.watch", true)
	viper.Set("debounce.timeout", "150ms")
	viper.Set("debounce.in_call_timeout", "1s")
	viper.Set("debounce.echo_sources", []string{"com.a", "com.b"})
	viper.Set("speech.grace_delay", "20ms")
	viper.Set("audio.volume", 0.5)

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Rules.Overrides != "/etc/eyesfree/rules" || !cfg.Rules.Watch {
		t.Errorf("Expected rules section to be loaded, got %+v", cfg.Rules)
	}
	if cfg.Debounce.Timeout != 150*time.Millisecond {
		t.Errorf("Expected timeout 150ms, got %v", cfg.Debounce.Timeout)
	}
	if cfg.Debounce.InCallTimeout != time.Second {
		t.Errorf("Expected in-call timeout 1s, got %v", cfg.Debounce.InCallTimeout)
	}
	if len(cfg.Debounce.EchoSources) != 2 || cfg.Debounce.EchoSources[1] != "com.b" {
		t.Errorf("Expected echo sources [com.a com.b], got %v", cfg.Debounce.EchoSources)
	}
	if cfg.Speech.GraceDelay != 20*time.Millisecond {
		t.Errorf("Expected grace delay 20ms, got %v", cfg.Speech.GraceDelay)
	}
	if cfg.Audio.Volume != 0.5 {
		t.Errorf("Expected volume 0.5, got %f", cfg.Audio.Volume)
	}

	// Unset keys keep their defaults.
	if cfg.Debounce.MaxEvents != DefaultConfig().Debounce.MaxEvents {
		t.Errorf("Expected default max events, got %d", cfg.Debounce.MaxEvents)
	}
}

func TestLoadConfigFromViper_Invalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("speech.engine", "festival")
	if _, err := LoadConfigFromViper(); err == nil {
		t.Error("Expected error for invalid engine")
	}
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := DefaultConfig()
	if cfg.Debounce.Timeout != want.Debounce.Timeout {
		t.Errorf("Expected timeout %v, got %v", want.Debounce.Timeout, cfg.Debounce.Timeout)
	}
	if cfg.Speech.IDPrefix != want.Speech.IDPrefix {
		t.Errorf("Expected id prefix %q, got %q", want.Speech.IDPrefix, cfg.Speech.IDPrefix)
	}
	if cfg.Piper.Timeout != want.Piper.Timeout {
		t.Errorf("Expected piper timeout %v, got %v", want.Piper.Timeout, cfg.Piper.Timeout)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EYESFREE_SPEECH_ENGINE", "piper")
	t.Setenv("EYESFREE_PIPER_MODEL", "voice.onnx")
	t.Setenv("EYESFREE_PIPER_SPEED", "1.5")
	t.Setenv("EYESFREE_DEBOUNCE_IN_CALL_PACKAGES", "com.a,com.b")
	t.Setenv("EYESFREE_RULES_WATCH", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Speech.Engine != "piper" || cfg.Piper.Model != "voice.onnx" || cfg.Piper.Speed != 1.5 {
		t.Errorf("Expected piper settings from env, got %+v / %+v", cfg.Speech, cfg.Piper)
	}
	if len(cfg.Debounce.InCallPackages) != 2 {
		t.Errorf("Expected 2 in-call packages, got %v", cfg.Debounce.InCallPackages)
	}
	if !cfg.Rules.Watch {
		t.Error("Expected watch enabled")
	}

	// Defaults match DefaultConfig.
	want := DefaultConfig()
	if cfg.Debounce.Timeout != want.Debounce.Timeout {
		t.Errorf("Expected default timeout %v, got %v", want.Debounce.Timeout, cfg.Debounce.Timeout)
	}
	if cfg.Cache.MemoryBytes != want.Cache.MemoryBytes {
		t.Errorf("Expected default memory bytes %d, got %d", want.Cache.MemoryBytes, cfg.Cache.MemoryBytes)
	}
	if cfg.Debounce.EchoSources[0] != want.Debounce.EchoSources[0] {
		t.Errorf("Expected default echo source %s, got %v", want.Debounce.EchoSources[0], cfg.Debounce.EchoSources)
	}
}

func TestConfig_Save(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules.Overrides = "/tmp/rules"
	cfg.Debounce.Timeout = 250 * time.Millisecond

	path := filepath.Join(t.TempDir(), "nested", "eyesfree.yml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Saved config does not parse: %v", err)
	}
	if loaded.Rules.Overrides != "/tmp/rules" {
		t.Errorf("Expected overrides /tmp/rules, got %q", loaded.Rules.Overrides)
	}
	if loaded.Debounce.Timeout != 250*time.Millisecond {
		t.Errorf("Expected timeout 250ms, got %v", loaded.Debounce.Timeout)
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debounce.MaxEvents = 4
	cfg.Speech.GraceDelay = 15 * time.Millisecond
	cfg.Cache.Dir = "/var/cache/eyesfree"
	cfg.Piper.Model = "voice.onnx"

	pc := cfg.PipelineConfig()
	if pc.Queue.MaxEvents != 4 || pc.Speech.GraceDelay != 15*time.Millisecond {
		t.Errorf("Unexpected pipeline config: %+v", pc)
	}
	if pc.SummaryBurst != 1 {
		t.Errorf("Expected summary burst 1, got %d", pc.SummaryBurst)
	}

	cc := cfg.CacheConfig()
	if cc.DiskPath != "/var/cache/eyesfree" || cc.MemoryCapacity != cfg.Cache.MemoryBytes {
		t.Errorf("Unexpected cache config: %+v", cc)
	}

	ec := cfg.PiperEngineConfig()
	if ec.ModelPath != "voice.onnx" || ec.Speed != 1.0 {
		t.Errorf("Unexpected piper config: %+v", ec)
	}
}

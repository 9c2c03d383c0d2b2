// Package tts holds the eyesfree application configuration.
package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/audio"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/cache"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/queue"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/speech"
	pipeline "github.com/RudolfWeeber/eyes-free-sub001/internal/tts"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/tts/engines"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "EYESFREE_"

// Config contains all eyesfree configuration options.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	Rules    RulesConfig    `yaml:"rules" envPrefix:"RULES_"`
	Debounce DebounceConfig `yaml:"debounce" envPrefix:"DEBOUNCE_"`
	Speech   SpeechConfig   `yaml:"speech" envPrefix:"SPEECH_"`
	Piper    PiperConfig    `yaml:"piper" envPrefix:"PIPER_"`
	Audio    AudioConfig    `yaml:"audio" envPrefix:"AUDIO_"`
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
}

// RulesConfig locates the rule documents.
type RulesConfig struct {
	// Default is the default rule document; empty uses the built-in one.
	Default string `yaml:"default" env:"DEFAULT"`
	// Overrides is the directory of per-package override documents.
	Overrides string `yaml:"overrides" env:"OVERRIDES"`
	// Watch reloads override documents when they change on disk.
	Watch bool `yaml:"watch" env:"WATCH" envDefault:"false"`
}

// DebounceConfig controls event coalescing.
type DebounceConfig struct {
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT" envDefault:"100ms"`
	InCallTimeout  time.Duration `yaml:"in_call_timeout" env:"IN_CALL_TIMEOUT" envDefault:"500ms"`
	MaxEvents      int           `yaml:"max_events" env:"MAX_EVENTS" envDefault:"10"`
	LockTimeout    time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT" envDefault:"50ms"`
	EchoSources    []string      `yaml:"echo_sources" env:"ECHO_SOURCES" envDefault:"com.android.inputmethod.latin"`
	InCallPackages []string      `yaml:"in_call_packages" env:"IN_CALL_PACKAGES" envDefault:"com.android.phone"`
	DropDuplicates bool          `yaml:"drop_duplicates" env:"DROP_DUPLICATES" envDefault:"true"`
}

// SpeechConfig selects the engine and tunes dispatching.
type SpeechConfig struct {
	// Engine is mock or piper.
	Engine          string        `yaml:"engine" env:"ENGINE" envDefault:"mock"`
	GraceDelay      time.Duration `yaml:"grace_delay" env:"GRACE_DELAY" envDefault:"0s"`
	IDPrefix        string        `yaml:"id_prefix" env:"ID_PREFIX" envDefault:"talkback_"`
	SummaryInterval time.Duration `yaml:"summary_interval" env:"SUMMARY_INTERVAL" envDefault:"1s"`
}

// PiperConfig contains Piper engine settings.
type PiperConfig struct {
	Binary        string        `yaml:"binary" env:"BINARY" envDefault:"piper"`
	Model         string        `yaml:"model" env:"MODEL"`
	Speaker       string        `yaml:"speaker" env:"SPEAKER"`
	Speed         float64       `yaml:"speed" env:"SPEED" envDefault:"1.0"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT" envDefault:"10s"`
	SynthesisRate float64       `yaml:"synthesis_rate" env:"SYNTHESIS_RATE" envDefault:"0"`
}

// AudioConfig contains playback settings.
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate" env:"SAMPLE_RATE" envDefault:"22050"`
	Volume     float64 `yaml:"volume" env:"VOLUME" envDefault:"1.0"`
}

// CacheConfig contains synthesized audio cache settings.
type CacheConfig struct {
	MemoryBytes int64  `yaml:"memory_bytes" env:"MEMORY_BYTES" envDefault:"33554432"`
	Dir         string `yaml:"dir" env:"DIR"`
	DiskBytes   int64  `yaml:"disk_bytes" env:"DISK_BYTES" envDefault:"268435456"`
	Compression int    `yaml:"compression" env:"COMPRESSION" envDefault:"3"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	q := queue.DefaultConfig()
	s := speech.DefaultConfig()
	c := cache.DefaultConfig()

	return Config{
		LogLevel: "info",
		Debounce: DebounceConfig{
			Timeout:        q.Timeout,
			InCallTimeout:  q.InCallTimeout,
			MaxEvents:      q.MaxEvents,
			LockTimeout:    q.LockTimeout,
			EchoSources:    q.EchoSources,
			InCallPackages: q.InCallPackages,
			DropDuplicates: true,
		},
		Speech: SpeechConfig{
			Engine:          string(pipeline.EngineMock),
			GraceDelay:      s.GraceDelay,
			IDPrefix:        s.IDPrefix,
			SummaryInterval: time.Second,
		},
		Piper: PiperConfig{
			Binary:  "piper",
			Speed:   engines.DefaultSpeed,
			Timeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate: audio.DefaultPlayerConfig().SampleRate,
			Volume:     1.0,
		},
		Cache: CacheConfig{
			MemoryBytes: c.MemoryCapacity,
			DiskBytes:   c.DiskCapacity,
			Compression: c.CompressionLevel,
		},
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration and normalizes case-insensitive values.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels)
	}

	engine, err := pipeline.ParseEngineType(c.Speech.Engine)
	if err != nil {
		return fmt.Errorf("speech engine: %w", err)
	}
	c.Speech.Engine = string(engine)

	if err := c.Debounce.Validate(); err != nil {
		return fmt.Errorf("debounce config: %w", err)
	}
	if c.Speech.GraceDelay < 0 || c.Speech.GraceDelay > time.Second {
		return fmt.Errorf("grace_delay must be between 0 and 1s, got %v", c.Speech.GraceDelay)
	}
	if c.Speech.SummaryInterval < 0 {
		return fmt.Errorf("summary_interval cannot be negative, got %v", c.Speech.SummaryInterval)
	}

	if err := c.Audio.PlayerConfig().Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Audio.Volume < 0.0 || c.Audio.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Audio.Volume)
	}

	if engine == pipeline.EnginePiper {
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	}

	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		return fmt.Errorf("compression must be between 0 and 22, got %d", c.Cache.Compression)
	}
	return nil
}

// Validate checks the debounce settings.
func (c *DebounceConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.InCallTimeout < c.Timeout {
		return fmt.Errorf("in_call_timeout (%v) cannot be shorter than timeout (%v)", c.InCallTimeout, c.Timeout)
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("max_events must be at least 1, got %d", c.MaxEvents)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %v", c.LockTimeout)
	}
	return nil
}

// Validate checks the Piper settings.
func (c *PiperConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("piper binary path cannot be empty")
	}
	if c.Model == "" {
		return errors.New("piper model cannot be empty")
	}
	if c.Speed < engines.MinSpeed || c.Speed > engines.MaxSpeed {
		return fmt.Errorf("speed must be between %.1f and %.1f, got %.2f", engines.MinSpeed, engines.MaxSpeed, c.Speed)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// PipelineConfig converts the configuration for the pipeline controller.
func (c *Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Queue = queue.Config{
		Timeout:        c.Debounce.Timeout,
		InCallTimeout:  c.Debounce.InCallTimeout,
		MaxEvents:      c.Debounce.MaxEvents,
		LockTimeout:    c.Debounce.LockTimeout,
		EchoSources:    c.Debounce.EchoSources,
		InCallPackages: c.Debounce.InCallPackages,
	}
	cfg.Speech = speech.Config{
		GraceDelay: c.Speech.GraceDelay,
		IDPrefix:   c.Speech.IDPrefix,
	}
	cfg.DropDuplicates = c.Debounce.DropDuplicates
	cfg.SummaryInterval = c.Speech.SummaryInterval
	return cfg
}

// CacheConfig converts the configuration for the audio cache. The disk
// tier is disabled when no directory is configured.
func (c *Config) CacheConfig() cache.Config {
	dir, _ := homedir.Expand(c.Cache.Dir)
	return cache.Config{
		MemoryCapacity:   c.Cache.MemoryBytes,
		DiskCapacity:     c.Cache.DiskBytes,
		DiskPath:         dir,
		CompressionLevel: c.Cache.Compression,
	}
}

// PiperEngineConfig converts the configuration for the Piper engine.
func (c *Config) PiperEngineConfig() engines.PiperConfig {
	return engines.PiperConfig{
		Binary:        c.Piper.Binary,
		ModelPath:     c.Piper.Model,
		Speaker:       c.Piper.Speaker,
		Speed:         c.Piper.Speed,
		Timeout:       c.Piper.Timeout,
		SynthesisRate: c.Piper.SynthesisRate,
	}
}

// PiperSettings returns the settings used to validate the Piper engine.
func (c *Config) PiperSettings() pipeline.PiperSettings {
	return pipeline.PiperSettings{Binary: c.Piper.Binary, ModelPath: c.Piper.Model}
}

// PlayerConfig converts the audio settings for the player.
func (c *AudioConfig) PlayerConfig() audio.PlayerConfig {
	cfg := audio.DefaultPlayerConfig()
	cfg.SampleRate = c.SampleRate
	return cfg
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand path: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

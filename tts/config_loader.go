package tts

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper overlays the keys set in Viper on the defaults and
// validates the result.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("log_level") {
		cfg.LogLevel = viper.GetString("log_level")
	}

	// Rules
	if viper.IsSet("rules.default") {
		cfg.Rules.Default = viper.GetString("rules.default")
	}
	if viper.IsSet("rules.overrides") {
		cfg.Rules.Overrides = viper.GetString("rules.overrides")
	}
	if viper.IsSet("rules.watch") {
		cfg.Rules.Watch = viper.GetBool("rules.watch")
	}

	cfg.Debounce = loadDebounceConfig(cfg.Debounce)
	cfg.Speech = loadSpeechConfig(cfg.Speech)
	cfg.Piper = loadPiperConfig(cfg.Piper)

	// Audio
	if viper.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = viper.GetInt("audio.sample_rate")
	}
	if viper.IsSet("audio.volume") {
		cfg.Audio.Volume = viper.GetFloat64("audio.volume")
	}

	// Cache
	if viper.IsSet("cache.memory_bytes") {
		cfg.Cache.MemoryBytes = viper.GetInt64("cache.memory_bytes")
	}
	if viper.IsSet("cache.dir") {
		cfg.Cache.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.disk_bytes") {
		cfg.Cache.DiskBytes = viper.GetInt64("cache.disk_bytes")
	}
	if viper.IsSet("cache.compression") {
		cfg.Cache.Compression = viper.GetInt("cache.compression")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDebounceConfig(cfg DebounceConfig) DebounceConfig {
	if viper.IsSet("debounce.timeout") {
		cfg.Timeout = viper.GetDuration("debounce.timeout")
	}
	if viper.IsSet("debounce.in_call_timeout") {
		cfg.InCallTimeout = viper.GetDuration("debounce.in_call_timeout")
	}
	if viper.IsSet("debounce.max_events") {
		cfg.MaxEvents = viper.GetInt("debounce.max_events")
	}
	if viper.IsSet("debounce.lock_timeout") {
		cfg.LockTimeout = viper.GetDuration("debounce.lock_timeout")
	}
	if viper.IsSet("debounce.echo_sources") {
		cfg.EchoSources = viper.GetStringSlice("debounce.echo_sources")
	}
	if viper.IsSet("debounce.in_call_packages") {
		cfg.InCallPackages = viper.GetStringSlice("debounce.in_call_packages")
	}
	if viper.IsSet("debounce.drop_duplicates") {
		cfg.DropDuplicates = viper.GetBool("debounce.drop_duplicates")
	}
	return cfg
}

func loadSpeechConfig(cfg SpeechConfig) SpeechConfig {
	if viper.IsSet("speech.engine") {
		cfg.Engine = viper.GetString("speech.engine")
	}
	if viper.IsSet("speech.grace_delay") {
		cfg.GraceDelay = viper.GetDuration("speech.grace_delay")
	}
	if viper.IsSet("speech.id_prefix") {
		cfg.IDPrefix = viper.GetString("speech.id_prefix")
	}
	if viper.IsSet("speech.summary_interval") {
		cfg.SummaryInterval = viper.GetDuration("speech.summary_interval")
	}
	return cfg
}

func loadPiperConfig(cfg PiperConfig) PiperConfig {
	if viper.IsSet("piper.binary") {
		cfg.Binary = viper.GetString("piper.binary")
	}
	if viper.IsSet("piper.model") {
		cfg.Model = viper.GetString("piper.model")
	}
	if viper.IsSet("piper.speaker") {
		cfg.Speaker = viper.GetString("piper.speaker")
	}
	if viper.IsSet("piper.speed") {
		cfg.Speed = viper.GetFloat64("piper.speed")
	}
	if viper.IsSet("piper.timeout") {
		cfg.Timeout = viper.GetDuration("piper.timeout")
	}
	if viper.IsSet("piper.synthesis_rate") {
		cfg.SynthesisRate = viper.GetFloat64("piper.synthesis_rate")
	}
	return cfg
}

// LoadConfigFromEnv reads the configuration from EYESFREE_* environment
// variables. Unset variables take their documented defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers the defaults in Viper.
func SetDefaults() {
	d := DefaultConfig()

	viper.SetDefault("log_level", d.LogLevel)

	viper.SetDefault("rules.default", d.Rules.Default)
	viper.SetDefault("rules.overrides", d.Rules.Overrides)
	viper.SetDefault("rules.watch", d.Rules.Watch)

	viper.SetDefault("debounce.timeout", d.Debounce.Timeout.String())
	viper.SetDefault("debounce.in_call_timeout", d.Debounce.InCallTimeout.String())
	viper.SetDefault("debounce.max_events", d.Debounce.MaxEvents)
	viper.SetDefault("debounce.lock_timeout", d.Debounce.LockTimeout.String())
	viper.SetDefault("debounce.echo_sources", d.Debounce.EchoSources)
	viper.SetDefault("debounce.in_call_packages", d.Debounce.InCallPackages)
	viper.SetDefault("debounce.drop_duplicates", d.Debounce.DropDuplicates)

	viper.SetDefault("speech.engine", d.Speech.Engine)
	viper.SetDefault("speech.grace_delay", d.Speech.GraceDelay.String())
	viper.SetDefault("speech.id_prefix", d.Speech.IDPrefix)
	viper.SetDefault("speech.summary_interval", d.Speech.SummaryInterval.String())

	viper.SetDefault("piper.binary", d.Piper.Binary)
	viper.SetDefault("piper.speed", d.Piper.Speed)
	viper.SetDefault("piper.timeout", d.Piper.Timeout.String())

	viper.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	viper.SetDefault("audio.volume", d.Audio.Volume)

	viper.SetDefault("cache.memory_bytes", d.Cache.MemoryBytes)
	viper.SetDefault("cache.disk_bytes", d.Cache.DiskBytes)
	viper.SetDefault("cache.compression", d.Cache.Compression)
}

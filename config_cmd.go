package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log level: debug, info, warn or error
log_level: "info"

# Rule documents
rules:
  # default rule document; empty uses the built-in rules
  default: ""
  # directory of per-package override documents (com.example.app.yaml)
  overrides: ""
  # reload overrides when they change on disk
  watch: false

# Event debouncing
debounce:
  # quiet period before a burst of events is processed
  timeout: "100ms"
  # quiet period while the phone app is in the foreground
  in_call_timeout: "500ms"
  # events of one kind kept per burst
  max_events: 10
  # how long an event waits for the queue lock before it is dropped
  lock_timeout: "50ms"
  # packages whose text events are dropped (keyboard echo)
  echo_sources:
    - "com.android.inputmethod.latin"
  # packages that select the in-call timeout
  in_call_packages:
    - "com.android.phone"
  # drop an event equal to the previous one
  drop_duplicates: true

# Speech dispatching
speech:
  # engine: mock or piper
  engine: "mock"
  # pause between stopping speech and the interrupting utterance
  grace_delay: "0s"
  # prefix of utterance completion ids
  id_prefix: "talkback_"
  # minimum time between notification summaries
  summary_interval: "1s"

# Piper TTS engine configuration
piper:
  binary: "piper"
  # model: "~/.local/share/piper/models/en_US-lessac-medium.onnx"
  # speaker: "0"
  # speed multiplier, 0.5 to 2.0
  speed: 1.0
  timeout: "10s"
  # synthesis runs per second, 0 for unlimited
  synthesis_rate: 0

# Audio output
audio:
  sample_rate: 22050
  # volume level (0.0 to 1.0)
  volume: 1.0

# Synthesized audio cache
cache:
  memory_bytes: 33554432
  # disk tier, disabled when empty
  # dir: "~/.cache/eyesfree/audio"
  disk_bytes: 268435456
  # zstd level, 0 disables compression
  compression: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the eyesfree config file",
	Long:    paragraph(fmt.Sprintf("\n%s the eyesfree config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("eyesfree config\neyesfree config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Eyesfree", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

// Package main provides the entry point for the eyesfree CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/audio"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/cache"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/processor"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
	pipeline "github.com/RudolfWeeber/eyes-free-sub001/internal/tts"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/tts/engines"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/watch"
	"github.com/RudolfWeeber/eyes-free-sub001/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	eventsFile string
	engineName string
	linger     time.Duration
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "eyesfree [--events FILE]",
		Short: "Speak accessibility events",
		Long: paragraph(
			fmt.Sprintf("\nTurn a feed of UI accessibility events into %s.", keyword("spoken feedback")),
		),
		Example: paragraph("adb logcat | event-bridge | eyesfree\n" +
			"eyesfree --events session.jsonl --engine piper\n" +
			"eyesfree --overrides ~/.config/eyesfree/rules --watch"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("config") {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			setLogLevel(viper.GetString("log_level"), debug)
			return nil
		},
		RunE: execute,
	}
)

func execute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel, debug)

	in, closeIn, err := openEvents(eventsFile)
	if err != nil {
		return err
	}
	defer closeIn() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, in, cmd.OutOrStdout())
}

// loadConfig resolves the engine selection and reads the configuration
// from Viper.
func loadConfig() (tts.Config, error) {
	engine, err := pipeline.ValidateEngineSelection(engineName, viper.GetString("speech.engine"))
	if err != nil {
		return tts.Config{}, err
	}
	viper.Set("speech.engine", string(engine))

	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}

	result := pipeline.ValidateEngine(engine, cfg.PiperSettings())
	if !result.Available {
		if result.Guidance != "" {
			fmt.Fprintln(os.Stderr, result.Guidance)
		}
		return cfg, result.Error
	}
	for k, v := range result.Details {
		log.Debug("Engine detail", "key", k, "value", v)
	}
	return cfg, nil
}

// openEvents opens the event feed; "" and "-" read stdin.
func openEvents(path string) (io.Reader, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to expand path: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open event feed: %w", err)
	}
	return f, f.Close, nil
}

// run wires the pipeline and serves the feed until it ends or ctx is done.
func run(ctx context.Context, cfg tts.Config, in io.Reader, out io.Writer) error {
	logger := log.Default()

	repo, classes, err := newRepository(logger)
	if err != nil {
		return err
	}
	defaults, err := loadDefaultRules(repo, cfg.Rules.Default)
	if err != nil {
		return fmt.Errorf("unable to load default rules: %w", err)
	}

	overrides, err := homedir.Expand(cfg.Rules.Overrides)
	if err != nil {
		return fmt.Errorf("unable to expand overrides path: %w", err)
	}

	engine, err := newEngine(cfg, out, logger)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Engine:       engine,
		DefaultRules: defaults,
		Classes:      classes,
		Logger:       logger,
	}
	if overrides != "" {
		deps.Loader = processor.DirLoader(repo, overrides)
	}

	ctrl, err := pipeline.NewController(cfg.PipelineConfig(), deps)
	if err != nil {
		_ = engine.Shutdown()
		return fmt.Errorf("unable to create pipeline: %w", err)
	}
	if err := ctrl.Start(ctx); err != nil {
		_ = engine.Shutdown()
		return err
	}
	defer func() {
		if err := ctrl.Stop(); err != nil {
			log.Error("Could not stop pipeline", "err", err)
		}
	}()

	if cfg.Rules.Watch && overrides != "" {
		w, err := watch.New(overrides, ctrl, watch.DefaultSettle, logger)
		if err != nil {
			return fmt.Errorf("unable to watch overrides: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("Override watcher stopped", "err", err)
			}
		}()
	}

	log.Info("Serving events", "engine", cfg.Speech.Engine, "overrides", overrides)
	if err := ctrl.Serve(ctx, in); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	// the feed ended; let the last burst be spoken
	drainCtx, cancel := context.WithTimeout(ctx, linger)
	defer cancel()
	if err := ctrl.Drain(drainCtx); err != nil {
		log.Debug("Stopped before speech finished", "err", err)
	}

	stats := ctrl.Stats()
	log.Info("Feed finished",
		"events", stats.EventsReceived,
		"spoken", stats.Speech.Spoken,
		"dropped", stats.DuplicatesDropped,
	)
	return nil
}

// newRepository creates a rule repository with the built-in custom
// capabilities and class table.
func newRepository(logger *log.Logger) (*rules.Repository, *rules.ClassResolver, error) {
	classes, err := rules.NewClassResolver(0, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load class table: %w", err)
	}
	return rules.NewRepository(rules.NewBuiltinRegistry(), classes, logger), classes, nil
}

func loadDefaultRules(repo *rules.Repository, path string) (rules.RuleSet, error) {
	if path == "" {
		return repo.LoadDefault()
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return repo.LoadFile(path)
}

// newEngine creates the configured speech engine. The mock engine prints
// each utterance to out.
func newEngine(cfg tts.Config, out io.Writer, logger *log.Logger) (ttypes.SpeechEngine, error) {
	switch pipeline.EngineType(cfg.Speech.Engine) {
	case pipeline.EngineMock:
		return engines.NewMockEngine(engines.WithOutput(out), engines.WithAutoComplete()), nil

	case pipeline.EnginePiper:
		player, err := audio.NewPlayer(cfg.Audio.PlayerConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to open audio output: %w", err)
		}
		if err := player.SetVolume(cfg.Audio.Volume); err != nil {
			_ = player.Close()
			return nil, err
		}

		ac, err := cache.NewAudioCache(cfg.CacheConfig())
		if err != nil {
			_ = player.Close()
			return nil, fmt.Errorf("unable to create audio cache: %w", err)
		}

		pc := cfg.PiperEngineConfig()
		pc.Cache = ac
		pc.Logger = logger
		engine, err := engines.NewPiperEngine(pc, player)
		if err != nil {
			_ = ac.Close()
			_ = player.Close()
			return nil, fmt.Errorf("unable to start piper: %w", err)
		}
		return engine, nil

	default:
		return nil, fmt.Errorf("%w: %s", pipeline.ErrInvalidEngine, cfg.Speech.Engine)
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tts.SetDefaults()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.Flags().StringVarP(&eventsFile, "events", "e", "", "JSON-lines event feed (default stdin)")
	rootCmd.Flags().StringVar(&engineName, "engine", "", "speech engine: mock or piper")
	rootCmd.Flags().StringP("rules", "r", "", "default rule document (default built-in rules)")
	rootCmd.Flags().StringP("overrides", "o", "", "directory of per-package override documents")
	rootCmd.Flags().BoolP("watch", "w", false, "reload overrides when they change")
	rootCmd.Flags().DurationVar(&linger, "linger", 10*time.Second, "how long to keep speaking after the feed ends")

	// Config bindings
	_ = viper.BindPFlag("rules.default", rootCmd.Flags().Lookup("rules"))
	_ = viper.BindPFlag("rules.overrides", rootCmd.Flags().Lookup("overrides"))
	_ = viper.BindPFlag("rules.watch", rootCmd.Flags().Lookup("watch"))

	rootCmd.AddCommand(configCmd, rulesCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "eyesfree")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "eyesfree")}, dirs...)
	}

	if c := os.Getenv("EYESFREE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("eyesfree")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("eyesfree")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "eyesfree.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

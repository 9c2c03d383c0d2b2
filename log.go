package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "eyesfree").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "eyesfree.log"), nil
}

// setupLog sends log output to the log file in the user cache directory,
// or to stderr when EYESFREE_LOG_STDERR is set. The returned func closes
// the file.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	log.SetReportTimestamp(true)

	if os.Getenv("EYESFREE_LOG_STDERR") != "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, fmt.Errorf("could not locate log file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	log.SetOutput(f)
	return f.Close, nil
}

// setLogLevel applies the configured level; --debug wins.
func setLogLevel(level string, debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("Unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

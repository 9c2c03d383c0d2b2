package tts

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// PiperSettings are the Piper options that validation inspects.
type PiperSettings struct {
	// Binary is the piper executable name or path.
	Binary string

	// ModelPath is the .onnx voice model.
	ModelPath string
}

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	// Engine is the validated engine type
	Engine EngineType

	// Available indicates if the engine is available and configured
	Available bool

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// ValidateEngineSelection resolves the engine from the CLI argument,
// falling back to the configured engine.
func ValidateEngineSelection(cliArg, configured string) (EngineType, error) {
	name := strings.TrimSpace(cliArg)
	if name == "" {
		name = configured
	}

	engine, err := ParseEngineType(name)
	if err != nil {
		return EngineNone, fmt.Errorf("%w\n\nSupported engines:\n  - mock (prints utterances, no audio)\n  - piper (offline TTS)", err)
	}
	return engine, nil
}

// ValidateEngine checks that the selected engine can run.
func ValidateEngine(engineType EngineType, piper PiperSettings) *ValidationResult {
	result := &ValidationResult{
		Engine:  engineType,
		Details: make(map[string]string),
	}

	switch engineType {
	case EngineMock:
		result.Details["engine"] = "Mock (no audio)"
		result.Available = true
	case EnginePiper:
		result = validatePiperEngine(piper, result)
	case EngineNone:
		result.Error = ErrNoEngineConfigured
		result.Guidance = "Please specify an engine with --engine or in the config file"
	default:
		result.Error = fmt.Errorf("%w: %s", ErrInvalidEngine, engineType)
		result.Guidance = "Supported engines: mock, piper"
	}

	return result
}

// validatePiperEngine validates the Piper configuration and availability
func validatePiperEngine(settings PiperSettings, result *ValidationResult) *ValidationResult {
	result.Details["engine"] = "Piper (Offline TTS)"

	binary := settings.Binary
	if binary == "" {
		binary = "piper"
	}
	piperPath, err := exec.LookPath(binary)
	if err != nil {
		result.Error = fmt.Errorf("piper not found: %w", err)
		result.Guidance = buildPiperInstallGuidance()
		return result
	}
	result.Details["binary_path"] = piperPath

	if settings.ModelPath == "" {
		result.Error = fmt.Errorf("piper model path not configured")
		result.Guidance = buildPiperModelGuidance()
		return result
	}

	modelPath, err := homedir.Expand(settings.ModelPath)
	if err != nil {
		result.Error = fmt.Errorf("expand model path: %w", err)
		result.Guidance = buildPiperModelGuidance()
		return result
	}
	result.Details["model_path"] = modelPath

	if _, err := os.Stat(modelPath); err != nil {
		result.Error = fmt.Errorf("model file not accessible: %w", err)
		result.Guidance = buildPiperModelGuidance()
		return result
	}

	// Piper reads the voice config from <model>.json
	if _, err := os.Stat(modelPath + ".json"); err == nil {
		result.Details["config_path"] = modelPath + ".json"
	} else {
		result.Details["config_note"] = "Voice config not found next to the model"
	}

	result.Available = true
	result.Details["status"] = "Ready"
	return result
}

// buildPiperInstallGuidance provides instructions for installing Piper
func buildPiperInstallGuidance() string {
	return `Piper TTS is not installed. To install:

1. Download the Piper binary from: https://github.com/rhasspy/piper/releases
2. Extract it and add it to PATH, or set piper.binary in the config file.
3. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md

Use --engine mock to run the pipeline without audio.`
}

// buildPiperModelGuidance provides instructions for configuring Piper models
func buildPiperModelGuidance() string {
	return `Piper model path not configured or not readable. To configure:

1. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md
2. Set the model path in eyesfree.yml:
   speech:
     engine: piper
   piper:
     model: ~/.local/share/piper/models/en_US-amy-medium.onnx`
}

// QuickValidation performs a fast availability check.
func QuickValidation(engineType EngineType, piper PiperSettings) error {
	switch engineType {
	case EngineMock:
		return nil
	case EnginePiper:
		binary := piper.Binary
		if binary == "" {
			binary = "piper"
		}
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("piper not found: %w", err)
		}
		return nil
	default:
		return ErrInvalidEngine
	}
}

package config

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// parseLegacy reads the pre-JSONC key/value config format: one "dotted.key =
// value" assignment per line, "#" line comments, blank lines ignored. It is
// kept only for migration — config.Load prefers JSONC and only falls back
// to this parser when the first non-whitespace byte of the file isn't "{".
func parseLegacy(content string, base Config) (Config, []Warning, error) {
	cfg := base
	warnings := make([]Warning, 0)

	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return Config{}, nil, fmt.Errorf("line %d: expected \"key = value\", got %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		if err := applyLegacyKV(&cfg, key, value); err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, nil, fmt.Errorf("read legacy config: %w", err)
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func applyLegacyKV(cfg *Config, key, value string) error {
	switch key {
	case "audio.input":
		cfg.Audio.Input = value
	case "audio.fallback":
		cfg.Audio.Fallback = value

	case "paste.enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("paste.enable: %w", err)
		}
		cfg.Paste.Enable = b
	case "paste.shortcut":
		cfg.Paste.Shortcut = value

	case "models.fast_path":
		cfg.Models.FastPath = value
	case "models.refine_path":
		cfg.Models.RefinePath = value
	case "models.accelerator":
		cfg.Models.Accelerator = value
	case "models.language_hint":
		cfg.Models.LanguageHint = value
	case "models.beam_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("models.beam_size: %w", err)
		}
		cfg.Models.BeamSize = n

	case "chunking.fast_seconds":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("chunking.fast_seconds: %w", err)
		}
		cfg.Chunking.FastSeconds = f
	case "chunking.refine_seconds":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("chunking.refine_seconds: %w", err)
		}
		cfg.Chunking.RefineSeconds = f
	case "chunking.threshold_seconds":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("chunking.threshold_seconds: %w", err)
		}
		cfg.Chunking.ThresholdSeconds = f
	case "chunking.force_strategy":
		cfg.Chunking.ForceStrategy = value
	case "chunking.merge_refine":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("chunking.merge_refine: %w", err)
		}
		cfg.Chunking.MergeRefine = b

	case "ring_buffer_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ring_buffer_seconds: %w", err)
		}
		cfg.RingBufferSeconds = n

	case "recordings.dir":
		cfg.Recordings.Dir = value

	case "transcript.trailing_space":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("transcript.trailing_space: %w", err)
		}
		cfg.Transcript.TrailingSpace = b
	case "transcript.capitalize_sentences":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("transcript.capitalize_sentences: %w", err)
		}
		cfg.Transcript.CapitalizeSentences = b

	case "indicator.enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("indicator.enable: %w", err)
		}
		cfg.Indicator.Enable = b
	case "indicator.backend":
		cfg.Indicator.Backend = value
	case "indicator.desktop_app_name":
		cfg.Indicator.DesktopAppName = value
	case "indicator.sound_enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("indicator.sound_enable: %w", err)
		}
		cfg.Indicator.SoundEnable = b
	case "indicator.height":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("indicator.height: %w", err)
		}
		cfg.Indicator.Height = n
	case "indicator.error_timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("indicator.error_timeout_ms: %w", err)
		}
		cfg.Indicator.ErrorTimeoutMS = n

	case "clipboard_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: value, Argv: argv}
	case "paste_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("paste_cmd: %w", err)
		}
		cfg.PasteCmd = CommandConfig{Raw: value, Argv: argv}

	case "debug.audio_dump":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("debug.audio_dump: %w", err)
		}
		cfg.Debug.EnableAudioDump = b

	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

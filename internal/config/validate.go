package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Models.FastPath) == "" {
		return nil, fmt.Errorf("models.fast_path must not be empty")
	}
	accelerator := strings.ToLower(strings.TrimSpace(cfg.Models.Accelerator))
	if accelerator != "cpu" && accelerator != "gpu" {
		return nil, fmt.Errorf("models.accelerator must be one of: cpu, gpu")
	}
	if cfg.Models.BeamSize <= 0 {
		return nil, fmt.Errorf("models.beam_size must be > 0")
	}

	if cfg.Chunking.FastSeconds <= 0 {
		return nil, fmt.Errorf("chunking.fast_seconds must be > 0")
	}
	if cfg.Chunking.RefineSeconds < 0 {
		return nil, fmt.Errorf("chunking.refine_seconds must be >= 0")
	}
	if cfg.Chunking.ThresholdSeconds < 0 {
		return nil, fmt.Errorf("chunking.threshold_seconds must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Chunking.ForceStrategy)) {
	case "", "auto", "classic", "chunked", "progressive":
	default:
		return nil, fmt.Errorf("chunking.force_strategy must be one of: \"\", auto, classic, chunked, progressive")
	}

	if cfg.RingBufferSeconds <= 0 {
		return nil, fmt.Errorf("ring_buffer_seconds must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.Height <= 0 {
		return nil, fmt.Errorf("indicator.height must be > 0")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}

	if cfg.Paste.Enable && cfg.PasteCmd.Raw != "" && len(cfg.PasteCmd.Argv) == 0 {
		return nil, fmt.Errorf("paste_cmd is configured but empty")
	}
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0 && strings.TrimSpace(cfg.Paste.Shortcut) == "" {
		return nil, fmt.Errorf("paste.shortcut must not be empty when paste.enable=true and paste_cmd is unset")
	}

	return warnings, nil
}

// Package doctor runs runtime readiness diagnostics for config, tools, audio, and models.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/modelstore"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))

	if cfg.Config.Paste.Enable {
		if len(cfg.Config.PasteCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Config.PasteCmd.Argv, "paste_cmd"))
		} else {
			checks = append(checks, checkBinary("hyprctl", "default paste path requires hyprctl"))
		}
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkModelsReady(cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkModelsReady resolves the configured Fast- and (if set) Refine-tier
// model files to readable paths via modelstore, the same resolution the
// pipeline performs before loading them into the transcriber cache.
func checkModelsReady(cfg config.Config) Check {
	fastPath, err := modelstore.Resolve(cfg.Models.FastPath)
	if err != nil {
		return Check{Name: "models.fast", Pass: false, Message: err.Error()}
	}

	if strings.TrimSpace(cfg.Models.RefinePath) == "" {
		return Check{Name: "models.fast", Pass: true, Message: fmt.Sprintf("resolved %s", fastPath)}
	}

	refinePath, err := modelstore.Resolve(cfg.Models.RefinePath)
	if err != nil {
		return Check{Name: "models.refine", Pass: false, Message: err.Error()}
	}

	return Check{
		Name:    "models.fast+refine",
		Pass:    true,
		Message: fmt.Sprintf("resolved fast=%s refine=%s", fastPath, refinePath),
	}
}

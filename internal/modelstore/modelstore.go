// Package modelstore resolves configured Whisper model references (a bare
// file name or an absolute/relative path) to a concrete, readable file on
// disk, following the same CLI/XDG/home fallback shape as internal/config's
// config.conf resolution.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoModelConfigured is returned when Resolve is called with an empty
// reference — callers should treat this as "this tier is not configured"
// rather than a filesystem failure.
var ErrNoModelConfigured = errors.New("modelstore: no model configured")

// searchDirs, in priority order, are consulted for a bare model name (one
// with no path separator). An explicit absolute or relative path bypasses
// this search entirely.
func searchDirs() []string {
	var dirs []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "scout", "models"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "scout", "models"))
		dirs = append(dirs, filepath.Join(home, ".config", "scout", "models"))
	}
	return dirs
}

// Resolve turns ref into an absolute path to a readable file. ref may be:
//   - empty: returns ErrNoModelConfigured
//   - a path containing a separator (absolute or relative to cwd): used
//     as-is after existence/readability checks
//   - a bare file name: searched for under the XDG data dir and the user's
//     local-share/config model directories, in that order
func Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNoModelConfigured
	}

	if strings.ContainsRune(ref, filepath.Separator) || filepath.IsAbs(ref) {
		if err := checkReadable(ref); err != nil {
			return "", err
		}
		return ref, nil
	}

	var tried []string
	for _, dir := range searchDirs() {
		candidate := filepath.Join(dir, ref)
		tried = append(tried, candidate)
		if checkReadable(candidate) == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("modelstore: %q not found in any of %v", ref, tried)
}

// checkReadable reports whether path names a regular file that can be
// opened for reading.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("modelstore: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("modelstore: %s is a directory, not a model file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("modelstore: %w", err)
	}
	return f.Close()
}

// Distinct reports whether fast and refine name different resolved files —
// the signal the C7 strategy selector uses to decide Progressive vs
// Ring-Buffer Chunked (spec §4.7.4).
func Distinct(fastPath, refinePath string) bool {
	return refinePath != "" && refinePath != fastPath
}

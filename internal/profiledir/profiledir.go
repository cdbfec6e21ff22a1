// Package profiledir resolves the per-OS user-data directory used by the
// persistent Context Factory variant, creating it if absent.
package profiledir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "browser-bridge"

// Resolve returns the default per-OS cache directory for the bridge's
// browser profile, creating it (and any parents) if it does not exist.
// An explicit override always wins when non-empty.
func Resolve(override string) (string, error) {
	dir := override
	if dir == "" {
		base, err := defaultBase()
		if err != nil {
			return "", fmt.Errorf("profiledir: resolve base: %w", err)
		}
		dir = filepath.Join(base, appDirName, "profile")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("profiledir: create %s: %w", dir, err)
	}
	return dir, nil
}

func defaultBase() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Caches"), nil
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return v, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Local"), nil
	default:
		if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
			return v, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".cache"), nil
	}
}

// Forget removes the resolved directory entirely. The persistent factory's
// disposer does not call it: shutdown leaves the profile on disk so
// cookies/session persist.
func Forget(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

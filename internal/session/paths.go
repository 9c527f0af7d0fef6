package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.deskchat.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".deskchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// CacheDBPath returns the local cache database path for a session.
func CacheDBPath(name string) string {
	return filepath.Join(Dir(name), "deskchat.db")
}

// GuestPath returns the guest session descriptor path.
func GuestPath(name string) string {
	return filepath.Join(Dir(name), "guest.toml")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the engine log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "deskchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Files inside a session directory.
const (
	socketFile   = "daemon.sock"
	lockFile     = "LOCK"
	settingsFile = "session.toml"
	journalFile  = "journal.db"
	logDir       = "logs"
	logFile      = "rentchatd.log"
)

// maxSocketPath is the smallest sun_path limit among supported systems
// (macOS, 104 bytes including the NUL).
const maxSocketPath = 103

// BaseDir returns ~/.rentchat, or $RENTCHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("RENTCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rentchat")
}

func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath is the daemon's unix socket. It lives in the session directory
// unless that path is too long for a socket, in which case it moves to a
// per-user directory under the system temp dir.
func SocketPath(name string) string {
	p := filepath.Join(Dir(name), socketFile)
	if len(p) <= maxSocketPath {
		return p
	}
	return filepath.Join(runtimeDir(), name+".sock")
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "rentchat")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("rentchat-%d", os.Getuid()))
}

func LockPath(name string) string     { return filepath.Join(Dir(name), lockFile) }
func SettingsPath(name string) string { return filepath.Join(Dir(name), settingsFile) }
func JournalPath(name string) string  { return filepath.Join(Dir(name), journalFile) }
func LogDir(name string) string       { return filepath.Join(Dir(name), logDir) }
func LogPath(name string) string      { return filepath.Join(LogDir(name), logFile) }

// ConfigPath is the global config shared by all sessions.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates everything a session's daemon writes to, 0700.
func EnsureDir(name string) error {
	dirs := []string{Dir(name), LogDir(name), filepath.Dir(SocketPath(name))}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of existing sessions, sorted.
func List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "sessions"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

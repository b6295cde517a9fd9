package session

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv("RENTCHAT_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".rentchat", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("RENTCHAT_HOME", tmp)
	if got := BaseDir(); got != tmp {
		t.Errorf("BaseDir() = %q, want %q", got, tmp)
	}
}

func TestSessionFiles(t *testing.T) {
	t.Setenv("RENTCHAT_HOME", "/tmp/rc")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"settings", SettingsPath("test"), filepath.Join("sessions", "test", "session.toml")},
		{"journal", JournalPath("test"), filepath.Join("sessions", "test", "journal.db")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "rentchatd.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasSuffix(tt.got, tt.want) {
				t.Errorf("path = %q, want suffix %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("RENTCHAT_HOME", t.TempDir())

	if names, err := List(); err != nil || len(names) != 0 {
		t.Fatalf("List() on empty home = %v, %v", names, err)
	}
	for _, name := range []string{"main", "work"} {
		if err := EnsureDir(name); err != nil {
			t.Fatalf("EnsureDir(%s) error = %v", name, err)
		}
	}
	info, err := os.Stat(LogDir("main"))
	if err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"main", "work"}) {
		t.Errorf("List() = %v", names)
	}
}

func TestSocketPathFallsBackWhenTooLong(t *testing.T) {
	runtime, err := os.MkdirTemp("", "rt")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(runtime) })
	t.Setenv("XDG_RUNTIME_DIR", runtime)
	t.Setenv("RENTCHAT_HOME", filepath.Join(t.TempDir(), strings.Repeat("d", 80)))

	name := strings.Repeat("s", 20)
	got := SocketPath(name)
	want := filepath.Join(runtime, "rentchat", name+".sock")
	if got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
	if len(got) > maxSocketPath {
		t.Errorf("fallback still too long: %d bytes", len(got))
	}

	if err := EnsureDir(name); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(filepath.Dir(got)); err != nil || info.Mode().Perm() != 0700 {
		t.Errorf("runtime dir = %v, %v", info, err)
	}
}

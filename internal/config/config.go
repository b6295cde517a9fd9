package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the global ~/.rentchat/config.toml, shared by every session.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// Load reads the global config. A missing file is an error wrapping
// fs.ErrNotExist; use LoadOrEmpty where that is normal.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrEmpty is Load with a missing file read as an empty config.
func LoadOrEmpty(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// SetDefaultSession rewrites default_session, keeping any other settings.
func SetDefaultSession(path, name string) error {
	cfg, err := LoadOrEmpty(path)
	if err != nil {
		return err
	}
	cfg.DefaultSession = name
	return Save(path, cfg)
}

// Save writes cfg, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return writeTOML(path, cfg)
}

// writeTOML replaces path atomically; both files may hold an API token, so
// they are never world-readable.
func writeTOML(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return err
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Package config loads picbook settings from
// $XDG_CONFIG_HOME/picbook/config.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	appName        = "picbook"
	configFileName = "config.toml"
	logFileName    = "picbook.log"
)

// Audio backends.
const (
	BackendNative  = "native"
	BackendProcess = "process"
)

// Duration is a time.Duration written as a string such as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds user settings. Keys missing from the file keep their defaults.
type Config struct {
	LibraryDir    string   `toml:"library_dir"`
	LogLevel      string   `toml:"log_level"`
	LogFile       string   `toml:"log_file"`
	AutoplayDelay Duration `toml:"autoplay_delay"`
	AudioBackend  string   `toml:"audio_backend"`
	PlayerCommand string   `toml:"player_command,omitempty"`
	SampleRate    int      `toml:"sample_rate"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LibraryDir:    filepath.Join(DataDir(), "books"),
		LogLevel:      "info",
		LogFile:       filepath.Join(StateDir(), logFileName),
		AutoplayDelay: Duration{2000 * time.Millisecond},
		AudioBackend:  BackendNative,
		SampleRate:    44100,
	}
}

// Dir returns XDG_CONFIG_HOME/picbook or ~/.config/picbook.
func Dir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns XDG_STATE_HOME/picbook or ~/.local/state/picbook.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// DataDir returns XDG_DATA_HOME/picbook or ~/.local/share/picbook.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), configFileName)
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	_, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	switch c.AudioBackend {
	case BackendNative, BackendProcess:
	default:
		return fmt.Errorf("unknown audio_backend %q", c.AudioBackend)
	}
	if c.AutoplayDelay.Duration < 0 {
		return fmt.Errorf("autoplay_delay must not be negative")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	return nil
}

// Save writes the config to path, or the default location when path is empty.
func (c Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the editable settings for the persistence core. All fields
// have working defaults; the config file only needs the values it overrides.
type Config struct {
	// NoteDebounce is the quiet period before a plain note autosaves.
	NoteDebounce time.Duration
	// SceneDebounce is the quiet period before a whiteboard scene autosaves.
	// Longer than NoteDebounce because structured writes are costlier.
	SceneDebounce time.Duration
	// DataDir overrides the default data directory.
	DataDir string
}

// fileConfig is the on-disk shape. Durations are Go duration strings
// ("500ms", "2s") parsed with time.ParseDuration.
type fileConfig struct {
	NoteDebounce  string `yaml:"note_debounce"`
	SceneDebounce string `yaml:"scene_debounce"`
	DataDir       string `yaml:"data_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NoteDebounce:  2 * time.Second,
		SceneDebounce: 5 * time.Second,
	}
}

// Load reads the config file if present and overlays it on the defaults.
// A missing file is not an error.
func Load() (Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(filepath.Join(configDir, "config.yaml"))
}

// LoadFile loads configuration from an explicit path, overlaying defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if fc.NoteDebounce != "" {
		d, err := time.ParseDuration(fc.NoteDebounce)
		if err != nil {
			return Config{}, fmt.Errorf("config: note_debounce: %w", err)
		}
		cfg.NoteDebounce = d
	}
	if fc.SceneDebounce != "" {
		d, err := time.ParseDuration(fc.SceneDebounce)
		if err != nil {
			return Config{}, fmt.Errorf("config: scene_debounce: %w", err)
		}
		cfg.SceneDebounce = d
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	return cfg, nil
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: user config dir: %w", err)
	}
	return filepath.Join(base, "flashnote"), nil
}

// GetDataDir returns the directory holding the database and asset files.
func GetDataDir() (string, error) {
	if dir := os.Getenv("FLASHNOTE_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: user home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "flashnote"), nil
}

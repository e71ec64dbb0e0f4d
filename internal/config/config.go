// Package config owns the daemon's on-disk state: the TOML config file and
// the small single-value files (device UUID, session token, user id) that the
// setup flow writes and the daemon reads. Everything lives under the user
// config dir in a 0700 directory with 0600 files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the daemon configuration persisted as config.toml.
type Config struct {
	WatchClipboard bool   `mapstructure:"watch_clipboard"`
	PollIntervalMS uint64 `mapstructure:"poll_interval_ms"`
	ServerURL      string `mapstructure:"server_url"`
	DatabaseName   string `mapstructure:"database_name"`
	Notify         bool   `mapstructure:"notify"`
}

// Keys lists the settable config.toml keys, for the `config` subcommand.
var Keys = []string{"watch_clipboard", "poll_interval_ms", "server_url", "database_name", "notify"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WatchClipboard: true,
		PollIntervalMS: 500,
		ServerURL:      "wss://relay.clipsync.dev",
		DatabaseName:   "clipsync",
		Notify:         false,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	d := Default()
	v.SetDefault("watch_clipboard", d.WatchClipboard)
	v.SetDefault("poll_interval_ms", d.PollIntervalMS)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("database_name", d.DatabaseName)
	v.SetDefault("notify", d.Notify)
	return v
}

// Load reads config.toml, falling back to defaults when absent.
func Load() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	v := newViper()
	v.SetConfigFile(filepath.Join(dir, "config.toml"))
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as config.toml with mode 0600.
func (c Config) Save() error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}
	v := newViper()
	v.Set("watch_clipboard", c.WatchClipboard)
	v.Set("poll_interval_ms", c.PollIntervalMS)
	v.Set("server_url", c.ServerURL)
	v.Set("database_name", c.DatabaseName)
	v.Set("notify", c.Notify)
	path := filepath.Join(dir, "config.toml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Get returns the string form of a config key.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "watch_clipboard":
		return strconv.FormatBool(c.WatchClipboard), nil
	case "poll_interval_ms":
		return strconv.FormatUint(c.PollIntervalMS, 10), nil
	case "server_url":
		return c.ServerURL, nil
	case "database_name":
		return c.DatabaseName, nil
	case "notify":
		return strconv.FormatBool(c.Notify), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set parses value and assigns it to key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "watch_clipboard", "notify":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
		if key == "notify" {
			c.Notify = b
		} else {
			c.WatchClipboard = b
		}
		return nil
	case "poll_interval_ms":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil || n == 0 {
			return fmt.Errorf("poll_interval_ms must be a positive integer")
		}
		c.PollIntervalMS = n
		return nil
	case "server_url":
		c.ServerURL = value
		return nil
	case "database_name":
		c.DatabaseName = value
		return nil
	}
	return fmt.Errorf("unknown config key %q", key)
}

// Dir returns the clipsync config directory path without creating it.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "clipsync"), nil
}

// EnsureDir creates the config directory with mode 0700 and returns it.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// IdentityPath returns the path of the age identity file.
func IdentityPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "identity.age"), nil
}

func statePath(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func loadStateFile(name string) (string, bool, error) {
	path, err := statePath(name)
	if err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", name, err)
	}
	return strings.TrimSpace(string(raw)), true, nil
}

func saveStateFile(name, value string) error {
	if _, err := EnsureDir(); err != nil {
		return err
	}
	path, err := statePath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Chmod(path, 0o600)
}

// LoadDeviceID reads the device UUID; ok is false when setup has not run.
func LoadDeviceID() (id string, ok bool, err error) {
	return loadStateFile("device_id")
}

// SaveDeviceID persists the device UUID.
func SaveDeviceID(id string) error { return saveStateFile("device_id", id) }

// LoadToken reads the persisted relay session token, if any.
func LoadToken() (token string, ok bool, err error) {
	return loadStateFile("token")
}

// SaveToken persists the relay session token atomically (temp + rename).
// The relay worker's connect callback writes it while the reconnect loop may
// be about to reload it; a rename keeps readers from ever seeing a torn file.
func SaveToken(token string) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "token.*")
	if err != nil {
		return fmt.Errorf("token temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	path, err := statePath("token")
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename token: %w", err)
	}
	return nil
}

// LoadUserID reads the numeric user id; ok is false when setup has not run.
func LoadUserID() (userID uint64, ok bool, err error) {
	s, ok, err := loadStateFile("user_id")
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse user_id: %w", err)
	}
	return n, true, nil
}

// SaveUserID persists the numeric user id.
func SaveUserID(userID uint64) error {
	return saveStateFile("user_id", strconv.FormatUint(userID, 10))
}

// SocketPath returns the IPC socket path, in priority order:
// $XDG_RUNTIME_DIR, $TMPDIR, then a uid-suffixed /tmp fallback.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipsync.sock")
	}
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return filepath.Join(dir, "clipsync.sock")
	}
	return fmt.Sprintf("/tmp/clipsync-%d.sock", os.Getuid())
}

package daemon

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"markdownfs/internal/artifacts"
	"markdownfs/internal/storage"
	"markdownfs/internal/transform"
)

// EnvConfigDir overrides the config directory.
const EnvConfigDir = "MARKDOWNFS_CONFIG_DIR"

// getConfigDir returns the config directory path.
// Uses MARKDOWNFS_CONFIG_DIR if set, otherwise ~/.markdownfs.
// Computed on every call so tests can isolate it.
func getConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".markdownfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// RegistryPath returns the mount registry path
func RegistryPath() string {
	return filepath.Join(getConfigDir(), storage.RegistryFileName)
}

// LocksDir returns the directory holding per-mountpoint locks
func LocksDir() string {
	return filepath.Join(getConfigDir(), "locks")
}

// LockPath returns the lock file for key, usually an absolute mountpoint.
func LockPath(key string) string {
	sum := blake3.Sum256([]byte(key))
	return filepath.Join(LocksDir(), hex.EncodeToString(sum[:8])+".lock")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0o700)
}

// InitConfigDir creates the config directory and writes the default
// settings file when none exists.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(LocksDir(), 0o700); err != nil {
		return fmt.Errorf("failed to create locks directory: %w", err)
	}
	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0o600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Duration is a time.Duration read from and written to YAML as a string
// such as "1s".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Settings is the content of settings.yaml.
type Settings struct {
	LogLevel      string           `yaml:"log_level"`      // trace, debug, info, warn, none
	LogFile       string           `yaml:"log_file"`       // empty: stderr
	AllowOther    bool             `yaml:"allow_other"`    // FUSE allow_other
	TTL           Duration         `yaml:"ttl"`            // entry/attr validity (default: 1s)
	MaxBackground int              `yaml:"max_background"` // 0: go-fuse default
	Gitignore     bool             `yaml:"gitignore"`      // honour .gitignore files
	Hide          []string         `yaml:"hide"`           // extra hidden patterns
	Transforms    []transform.Rule `yaml:"transforms"`     // ordered, first match wins
	AgeIdentity   string           `yaml:"age_identity"`   // enables the age transform
	RenderWidth   int              `yaml:"render_width"`   // markdown wrap column
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "none"}

// Validate checks field values.
func (s *Settings) Validate() error {
	level := strings.ToLower(s.LogLevel)
	if level != "" {
		valid := false
		for _, l := range validLogLevels {
			if level == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log_level %q (want one of %s)", s.LogLevel, strings.Join(validLogLevels, ", "))
		}
	}
	if s.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	if s.MaxBackground < 0 {
		return fmt.Errorf("max_background must not be negative")
	}
	for i, r := range s.Transforms {
		if r.Pattern == "" || r.Transform == "" {
			return fmt.Errorf("transforms[%d]: pattern and transform are required", i)
		}
	}
	return nil
}

// TransformOptions returns the options for the built-in transforms.
func (s *Settings) TransformOptions() transform.Options {
	return transform.Options{
		RenderWidth:     s.RenderWidth,
		AgeIdentityFile: expandHome(s.AgeIdentity),
	}
}

// DefaultSettings parses the embedded settings file.
func DefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// LoadSettings reads settings.yaml over the embedded defaults. A missing
// file yields the defaults.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFromPath(SettingsPath())
}

// LoadSettingsFromPath is LoadSettings for an explicit file.
func LoadSettingsFromPath(path string) (*Settings, error) {
	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &settings, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &settings, nil
}

// Marshal renders settings as YAML.
func (s *Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BatchConfig holds batch import settings.
type BatchConfig struct {
	MaxCells int `yaml:"max_cells"`
}

// ExportConfig holds spreadsheet export settings.
type ExportConfig struct {
	SheetName      string `yaml:"sheet_name"`
	KeyHeader      string `yaml:"key_header"`
	ValueHeader    string `yaml:"value_header"`
	FilenamePrefix string `yaml:"filename_prefix"`
}

// ConfirmConfig holds the window for two-step destructive actions.
type ConfirmConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// DisplayConfig holds result table rendering settings.
type DisplayConfig struct {
	MinRows int `yaml:"min_rows"`
}

// ServeConfig holds HTTP API settings.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Config holds xlmatch configuration.
type Config struct {
	Version string        `yaml:"version"`
	Batch   BatchConfig   `yaml:"batch,omitempty"`
	Export  ExportConfig  `yaml:"export,omitempty"`
	Confirm ConfirmConfig `yaml:"confirm,omitempty"`
	Display DisplayConfig `yaml:"display,omitempty"`
	Serve   ServeConfig   `yaml:"serve,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Batch: BatchConfig{
			MaxCells: 5,
		},
		Export: ExportConfig{
			SheetName:      "Matched Results",
			KeyHeader:      "Name",
			ValueHeader:    "UID / Value",
			FilenamePrefix: "matched_export",
		},
		Confirm: ConfirmConfig{
			WindowSeconds: 3,
		},
		Display: DisplayConfig{
			MinRows: 8,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// Store represents a loaded XLMATCH_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

const (
	configFile = "config.yaml"
	stateFile  = "state.db"
	exportsDir = "exports"
)

// Home returns the XLMATCH_HOME path, respecting the XLMATCH_HOME env var.
func Home() string {
	if h := os.Getenv("XLMATCH_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".xlmatch")
	}
	return filepath.Join(home, ".xlmatch")
}

// Init creates the XLMATCH_HOME directory structure.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("XLMATCH_HOME already exists at %s (use --force to reinitialize)", home)
	}

	for _, d := range []string{home, filepath.Join(home, exportsDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(home, configFile)
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads and validates an existing XLMATCH_HOME.
// Missing config fields are filled from defaults.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, configFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read XLMATCH_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// Open loads XLMATCH_HOME, initializing it first if it does not exist yet.
func Open(home string) (*Store, error) {
	if _, err := os.Stat(filepath.Join(home, configFile)); os.IsNotExist(err) {
		if err := Init(home, true); err != nil {
			return nil, err
		}
	}
	return Load(home)
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfgPath := filepath.Join(s.Home, configFile)
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigKeys lists the keys accepted by SetConfigValue.
var ConfigKeys = []string{
	"batch.max_cells",
	"export.sheet_name",
	"export.key_header",
	"export.value_header",
	"export.filename_prefix",
	"confirm.window_seconds",
	"display.min_rows",
	"serve.addr",
}

// SetConfigValue sets a config value by dot-path key (e.g. "batch.max_cells").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "batch.max_cells":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("batch.max_cells must be a positive integer")
		}
		s.Config.Batch.MaxCells = n
	case "export.sheet_name":
		if value == "" || len(value) > 31 || strings.ContainsAny(value, `:\/?*[]`) {
			return fmt.Errorf("export.sheet_name must be 1-31 characters without : \\ / ? * [ ]")
		}
		s.Config.Export.SheetName = value
	case "export.key_header":
		s.Config.Export.KeyHeader = value
	case "export.value_header":
		s.Config.Export.ValueHeader = value
	case "export.filename_prefix":
		if value == "" || strings.ContainsAny(value, `/\`) {
			return fmt.Errorf("export.filename_prefix must be a non-empty file name")
		}
		s.Config.Export.FilenamePrefix = value
	case "confirm.window_seconds":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("confirm.window_seconds must be a positive integer")
		}
		s.Config.Confirm.WindowSeconds = n
	case "display.min_rows":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 0 {
			return fmt.Errorf("display.min_rows must be a non-negative integer")
		}
		s.Config.Display.MinRows = n
	case "serve.addr":
		if !strings.Contains(value, ":") {
			return fmt.Errorf("serve.addr must look like host:port")
		}
		s.Config.Serve.Addr = value
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
	}
	return s.SaveConfig()
}

// Path resolves a path within XLMATCH_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// StatePath is the SQLite database holding the persisted slots.
func (s *Store) StatePath() string {
	return s.Path(stateFile)
}

// ExportsDir is the default destination for exported workbooks.
func (s *Store) ExportsDir() string {
	return s.Path(exportsDir)
}

// CheckHealth verifies XLMATCH_HOME structure integrity.
func CheckHealth(home string) []Issue {
	var issues []Issue

	p := filepath.Join(home, exportsDir)
	info, err := os.Stat(p)
	if err != nil {
		issues = append(issues, Issue{"warning", fmt.Sprintf("missing directory: %s", p)})
	} else if !info.IsDir() {
		issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
	}

	cfgPath := filepath.Join(home, configFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
	} else {
		cfg := DefaultConfig()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		} else if cfg.Batch.MaxCells < 1 {
			issues = append(issues, Issue{"warning", "batch.max_cells is below 1; batch imports will use the default of 5"})
		}
	}

	return issues
}

// FixIssues attempts to repair simple issues in XLMATCH_HOME.
func FixIssues(home string) []string {
	var fixed []string

	p := filepath.Join(home, exportsDir)
	if _, err := os.Stat(p); err != nil {
		if err := os.MkdirAll(p, 0755); err == nil {
			fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", exportsDir))
		}
	}

	cfgPath := filepath.Join(home, configFile)
	if _, err := os.Stat(cfgPath); err != nil {
		data, _ := yaml.Marshal(DefaultConfig())
		if os.WriteFile(cfgPath, data, 0644) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	return fixed
}

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".news-collector"

// Environment variables that take precedence over the settings file
const (
	envExtractionEndpoint = "NEWS_COLLECTOR_EXTRACTION_ENDPOINT"
	envOutputPath         = "NEWS_COLLECTOR_OUTPUT_PATH"
	envArchivePath        = "NEWS_COLLECTOR_ARCHIVE_PATH"
	envSkipArchived       = "NEWS_COLLECTOR_SKIP_ARCHIVED"
)

// ConfigOverrides allows overriding settings from command line flags
type ConfigOverrides struct {
	SettingsPath       *string
	OutputPath         *string
	ArchivePath        *string
	ExtractionEndpoint *string
	SkipArchived       *bool
}

//go:embed config/settings.yaml
var defaultSettings string

// Settings represents the YAML configuration structure
type Settings struct {
	OutputPath   string     `yaml:"output_path" validate:"required"`
	ArchivePath  string     `yaml:"archive_path"`
	SkipArchived bool       `yaml:"skip_archived"`
	Extraction   Extraction `yaml:"extraction"`
	Limits       Limits     `yaml:"limits"`
	Sources      []Source   `yaml:"sources" validate:"required,min=1,dive"`
}

// Extraction configures the crawling service used for page sources
type Extraction struct {
	Endpoint     string `yaml:"endpoint" validate:"required,url"`
	ContentField string `yaml:"content_field" validate:"required"`
}

// Limits holds the per-kind timeouts and truncation lengths
type Limits struct {
	FeedTimeout      time.Duration `yaml:"feed_timeout" validate:"gt=0"`
	PageTimeout      time.Duration `yaml:"page_timeout" validate:"gt=0"`
	FeedMaxChars     int           `yaml:"feed_max_chars" validate:"gt=0"`
	PageMaxChars     int           `yaml:"page_max_chars" validate:"gt=0"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" validate:"gt=0"`
}

// Config holds configuration and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig loads settings and applies environment and flag overrides on top
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	settingsPath, err := resolveSettingsPath(overrides)
	if err != nil {
		return nil, err
	}

	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := applyEnv(settings); err != nil {
		return nil, err
	}
	applyOverrides(settings, overrides)

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	return &Config{
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// resolveSettingsPath returns the settings file to layer over the embedded
// defaults, or "" when only the defaults apply
func resolveSettingsPath(overrides *ConfigOverrides) (string, error) {
	if overrides != nil && overrides.SettingsPath != nil && *overrides.SettingsPath != "" {
		// Explicit settings file must exist
		if _, err := os.Stat(*overrides.SettingsPath); err != nil {
			return "", fmt.Errorf("settings file %s: %w", *overrides.SettingsPath, err)
		}
		return *overrides.SettingsPath, nil
	}

	path := getConfigPath("settings.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", nil
}

// loadSettings parses the embedded defaults, then the file at path (if any)
// over them. Keys missing from the file keep their default value; a sources
// list in the file replaces the default list.
func loadSettings(path string) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("failed to parse embedded settings: %w", err)
	}

	if path == "" {
		return &settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	debugLog("loaded settings from %s (%d sources)", path, len(settings.Sources))
	return &settings, nil
}

func applyEnv(s *Settings) error {
	if v := os.Getenv(envExtractionEndpoint); v != "" {
		s.Extraction.Endpoint = v
	}
	if v := os.Getenv(envOutputPath); v != "" {
		s.OutputPath = v
	}
	if v := os.Getenv(envArchivePath); v != "" {
		s.ArchivePath = v
	}
	if v := os.Getenv(envSkipArchived); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: %s=%q is not a boolean", envSkipArchived, v)
		}
		s.SkipArchived = skip
	}
	return nil
}

func applyOverrides(s *Settings, o *ConfigOverrides) {
	if o == nil {
		return
	}
	if o.OutputPath != nil && *o.OutputPath != "" {
		s.OutputPath = *o.OutputPath
	}
	if o.ArchivePath != nil && *o.ArchivePath != "" {
		s.ArchivePath = *o.ArchivePath
	}
	if o.ExtractionEndpoint != nil && *o.ExtractionEndpoint != "" {
		s.Extraction.Endpoint = *o.ExtractionEndpoint
	}
	if o.SkipArchived != nil {
		s.SkipArchived = *o.SkipArchived
	}
}

// validateSettings reports the first invalid field in a readable form
func validateSettings(s *Settings) error {
	err := validator.New().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("config error: %s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("config error: %w", err)
}

// getConfigPath returns the path to a config file in the config directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists writes the default settings into dir unless a settings
// file is already there. It returns the settings path and whether it was created.
func ensureConfigExists(dir string) (string, bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := filepath.Join(dir, "settings.yaml")
	if _, err := os.Stat(settingsPath); err == nil {
		return settingsPath, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("checking settings file: %w", err)
	}

	if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
		return "", false, fmt.Errorf("failed to write default settings: %w", err)
	}
	return settingsPath, true, nil
}

// Package config provides configuration management for the download server.
// It handles the YAML configuration file and the legacy SLICER_DOWNLOAD_*
// environment conventions for locating the records database.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "dlserver.yaml"

// Sentinel errors for configuration validation
var (
	ErrListenRequired       = errors.New("server.listen is required")
	ErrInvalidTimeout       = errors.New("upstream.timeout is not a valid duration")
	ErrDownloadURLTemplate  = errors.New("download URL must contain {id}")
	ErrBitstreamPathInvalid = errors.New("server.bitstream_path must start with /")
)

// Config represents the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Listen           string `yaml:"listen"`
	API              string `yaml:"api"`               // Midas_v1 or Girder_v1
	BitstreamPath    string `yaml:"bitstream_path"`    // local prefix of download locators
	DownloadHostname string `yaml:"download_hostname"` // public base URL used in rendered pages
}

// StorageConfig locates the records database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	Fallback     bool   `yaml:"fallback"`
	Root         string `yaml:"root"` // base for relative paths, defaults to the working directory
	LogLevel     string `yaml:"log_level"`
}

// UpstreamConfig configures the package API the fetch command reads from.
type UpstreamConfig struct {
	MidasURL    string `yaml:"midas_url"`
	GirderURL   string `yaml:"girder_url"`
	GirderAppID string `yaml:"girder_app_id"`
	Timeout     string `yaml:"timeout"`
	UserAgent   string `yaml:"user_agent"`
}

// DownloadsConfig holds the redirect URL templates for /bitstream/{id}.
type DownloadsConfig struct {
	MidasURL  string `yaml:"midas_url"`
	GirderURL string `yaml:"girder_url"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:        ":8080",
			API:           catalog.DefaultSource.String(),
			BitstreamPath: "/bitstream",
		},
		Storage: StorageConfig{
			LogLevel: "silent",
		},
		Upstream: UpstreamConfig{
			MidasURL:    "http://slicer.kitware.com/midas3/api/json",
			GirderURL:   "https://slicer-packages.kitware.com/api/v1",
			GirderAppID: "5f4474d0e1d8c75dfc705482",
			Timeout:     "60s",
			UserAgent:   "dlserver/1.0",
		},
		Downloads: DownloadsConfig{
			MidasURL:  catalog.SourceMidas.DefaultDownloadURL(),
			GirderURL: catalog.SourceGirder.DefaultDownloadURL(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads and parses the configuration from a YAML file. Values
// missing from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadOrDefault loads filePath, or returns the defaults when it does not exist.
func LoadOrDefault(filePath string) (*Config, error) {
	config, err := LoadConfig(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return config, err
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return ErrListenRequired
	}
	if _, err := catalog.ParseSource(c.Server.API); err != nil {
		return fmt.Errorf("server.api: %w", err)
	}
	if c.Server.BitstreamPath != "" && !strings.HasPrefix(c.Server.BitstreamPath, "/") {
		return ErrBitstreamPathInvalid
	}
	if c.Upstream.Timeout != "" {
		if d, err := time.ParseDuration(c.Upstream.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, c.Upstream.Timeout)
		}
	}
	for name, tmpl := range map[string]string{
		"downloads.midas_url":  c.Downloads.MidasURL,
		"downloads.girder_url": c.Downloads.GirderURL,
	} {
		if tmpl != "" && !strings.Contains(tmpl, "{id}") {
			return fmt.Errorf("%s: %w", name, ErrDownloadURLTemplate)
		}
	}
	return nil
}

// Source returns the configured catalog source.
func (c *Config) Source() (catalog.Source, error) {
	return catalog.ParseSource(c.Server.API)
}

// GetUpstreamTimeout parses and returns the upstream request timeout.
func (u *UpstreamConfig) GetUpstreamTimeout() time.Duration {
	if u.Timeout == "" {
		return 60 * time.Second
	}
	timeout, err := time.ParseDuration(u.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return timeout
}

// UpstreamURL returns the package API base URL for source.
func (c *Config) UpstreamURL(source catalog.Source) string {
	if source == catalog.SourceGirder {
		return c.Upstream.GirderURL
	}
	return c.Upstream.MidasURL
}

// DownloadURL returns the redirect target for an artifact of source.
func (c *Config) DownloadURL(source catalog.Source, artifactID string) string {
	tmpl := c.Downloads.MidasURL
	if source == catalog.SourceGirder {
		tmpl = c.Downloads.GirderURL
	}
	if tmpl == "" {
		tmpl = source.DefaultDownloadURL()
	}
	return strings.ReplaceAll(tmpl, "{id}", artifactID)
}

// DatabasePath resolves the records database location. An explicit
// storage.database_path wins; otherwise the path is
// var/slicer-<source>-records.sqlite, or etc/fallback/... in fallback mode.
// Relative paths are resolved against storage.root.
func (c *Config) DatabasePath(source catalog.Source) string {
	path := c.Storage.DatabasePath
	if path == "" {
		dir := "var"
		if c.Storage.Fallback {
			dir = filepath.Join("etc", "fallback")
		}
		path = filepath.Join(dir, fmt.Sprintf("slicer-%s-records.sqlite", source.Slug()))
	}
	if path == ":memory:" || filepath.IsAbs(path) || c.Storage.Root == "" {
		return path
	}
	return filepath.Join(c.Storage.Root, path)
}

// ToBool converts a flag or environment value to a boolean. Integers are
// true when non-zero; any other string is true only when it equals "true",
// ignoring case.
func ToBool(value string) bool {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n != 0
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// Encode writes the configuration as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}

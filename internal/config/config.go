// Package config loads the run configuration: the target township, the input
// dataset paths and the output directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Defaults for optional keys.
const (
	DefaultTargetSRID    = 26915
	DefaultPostGISSchema = "public"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

// Config is constructed once at startup and handed to each stage.
type Config struct {
	Township        string `koanf:"township"`
	VerifiedWells   string `koanf:"verified_wells"`
	UnverifiedWells string `koanf:"unverified_wells"`
	Parcels         string `koanf:"parcels"`
	Samples         string `koanf:"samples"`
	Output          string `koanf:"output"`

	TargetSRID    int    `koanf:"target_srid"`
	PostGISDSN    string `koanf:"postgis_dsn"`
	PostGISSchema string `koanf:"postgis_schema"`
	LogLevel      string `koanf:"log_level"`
	LogFormat     string `koanf:"log_format"`
}

// RequiredKeys must be present and non-empty in every configuration.
var RequiredKeys = []string{"township", "verified_wells", "unverified_wells", "parcels", "samples", "output"}

// MissingKeysError names every required key that was absent or empty.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration keys: %s", strings.Join(e.Keys, ", "))
}

// Validate checks required keys and the optional enumerations.
func (c *Config) Validate() error {
	values := map[string]string{
		"township":         c.Township,
		"verified_wells":   c.VerifiedWells,
		"unverified_wells": c.UnverifiedWells,
		"parcels":          c.Parcels,
		"samples":          c.Samples,
		"output":           c.Output,
	}
	var missing []string
	for _, k := range RequiredKeys {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}

	if c.TargetSRID <= 0 {
		return fmt.Errorf("target_srid must be a positive EPSG code, got %d", c.TargetSRID)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// EnsureOutputDir creates the output directory and its parents.
func (c *Config) EnsureOutputDir() error {
	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", c.Output, err)
	}
	return nil
}

// OutputPath is the path of an output file named name with extension ext.
func (c *Config) OutputPath(name, ext string) string {
	return filepath.Join(c.Output, name+ext)
}

// PublishEnabled reports whether results should also be pushed to PostGIS.
func (c *Config) PublishEnabled() bool {
	return c.PostGISDSN != ""
}

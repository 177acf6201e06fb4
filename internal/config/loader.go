package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

// EnvPrefix prefixes environment overrides, e.g. RRMATCH_TOWNSHIP.
const EnvPrefix = "RRMATCH_"

// flagKeys maps CLI flag names that differ from their config key.
var flagKeys = map[string]string{
	"srid": "target_srid",
}

// Load builds and validates the configuration. Sources, lowest to highest
// precedence: defaults, the config file at path, RRMATCH_* environment
// variables, then flags that were set explicitly. An empty path skips the
// file; a path that does not exist is an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := LoadUnchecked(path, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnchecked is Load without validation, for commands that need only
// part of the configuration.
func LoadUnchecked(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"target_srid":    DefaultTargetSRID,
		"postgis_schema": DefaultPostGISSchema,
		"log_level":      DefaultLogLevel,
		"log_format":     DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// ErrUnknownConfigFormat is returned for config files with an unrecognised extension.
var ErrUnknownConfigFormat = errors.New("unknown config file format")

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".cfg", "":
		return iniParser{}, nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return tomlParser{}, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownConfigFormat)
	}
}

// iniParser reads the DEFAULT section of a configparser-style file. Key
// names are case-insensitive.
type iniParser struct{}

func (iniParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, b)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	for _, sec := range f.Sections() {
		if !strings.EqualFold(sec.Name(), ini.DefaultSection) {
			continue
		}
		for _, key := range sec.Keys() {
			out[strings.ToLower(key.Name())] = key.String()
		}
	}
	return out, nil
}

func (iniParser) Marshal(m map[string]interface{}) ([]byte, error) {
	f := ini.Empty()
	sec := f.Section(ini.DefaultSection)
	for k, v := range m {
		if _, err := sec.NewKey(k, fmt.Sprint(v)); err != nil {
			return nil, err
		}
	}
	var buf strings.Builder
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

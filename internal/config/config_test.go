package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iniConfig = `[DEFAULT]
township = ELM
verified_wells = data/verified.gpkg
unverified_wells = data/unverified.gpkg
Parcels = data/parcels.gpkg
samples = data/samples.csv
output = out
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadINI(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.ini", iniConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "ELM", cfg.Township)
	assert.Equal(t, "data/verified.gpkg", cfg.VerifiedWells)
	assert.Equal(t, "data/unverified.gpkg", cfg.UnverifiedWells)
	assert.Equal(t, "data/parcels.gpkg", cfg.Parcels)
	assert.Equal(t, "data/samples.csv", cfg.Samples)
	assert.Equal(t, "out", cfg.Output)

	assert.Equal(t, DefaultTargetSRID, cfg.TargetSRID)
	assert.Equal(t, DefaultPostGISSchema, cfg.PostGISSchema)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.False(t, cfg.PublishEnabled())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
township: PINE
verified_wells: v.gpkg
unverified_wells: u.gpkg
parcels: p.gpkg
samples: s.xlsx
output: results
target_srid: 26915
log_format: json
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "PINE", cfg.Township)
	assert.Equal(t, "s.xlsx", cfg.Samples)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
township = "OAK"
verified_wells = "v.gpkg"
unverified_wells = "u.gpkg"
parcels = "p.geojson"
samples = "s.csv"
output = "results"
postgis_dsn = "postgres://localhost/wells"
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "OAK", cfg.Township)
	assert.Equal(t, "p.geojson", cfg.Parcels)
	assert.True(t, cfg.PublishEnabled())
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "config.ini", iniConfig)
	t.Setenv("RRMATCH_TOWNSHIP", "PINE")
	t.Setenv("RRMATCH_OUTPUT", "env-out")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("township", "", "")
	flags.String("output", "", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--config", path, "--township", "OAK", "--log-level", "debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "OAK", cfg.Township, "flag beats env")
	assert.Equal(t, "env-out", cfg.Output, "env beats file, unset flag ignored")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "data/parcels.gpkg", cfg.Parcels)
}

func TestLoadMissingKeys(t *testing.T) {
	path := writeFile(t, "config.ini", "[DEFAULT]\ntownship = ELM\nparcels = p.gpkg\noutput =\n")

	_, err := Load(path, nil)
	require.Error(t, err)

	var missing *MissingKeysError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"verified_wells", "unverified_wells", "samples", "output"}, missing.Keys)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.ini"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadUnknownFormat(t *testing.T) {
	_, err := Load(writeFile(t, "config.xml", "<config/>"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigFormat))
}

func TestValidateLogFormat(t *testing.T) {
	cfg := &Config{
		Township: "ELM", VerifiedWells: "v", UnverifiedWells: "u",
		Parcels: "p", Samples: "s", Output: "o",
		TargetSRID: DefaultTargetSRID, LogFormat: "xml",
	}
	assert.Error(t, cfg.Validate())

	cfg.LogFormat = "json"
	assert.NoError(t, cfg.Validate())

	cfg.TargetSRID = 0
	assert.Error(t, cfg.Validate())
}

func TestEnsureOutputDir(t *testing.T) {
	cfg := &Config{Output: filepath.Join(t.TempDir(), "nested", "out")}

	require.NoError(t, cfg.EnsureOutputDir())
	require.NoError(t, cfg.EnsureOutputDir())

	info, err := os.Stat(cfg.Output)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(cfg.Output, "wells.gpkg"), cfg.OutputPath("wells", ".gpkg"))
}

func TestLoadUncheckedSkipsValidation(t *testing.T) {
	t.Setenv("RRMATCH_POSTGIS_DSN", "postgres://localhost/wells")

	cfg, err := LoadUnchecked("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/wells", cfg.PostGISDSN)
	assert.Empty(t, cfg.Township)

	_, err = Load("", nil)
	assert.Error(t, err)
}

// Package config loads Configuration (C8, spec §4.9): the submit-wide
// settings every CLI subcommand needs to build an Orchestrator — phase
// order, endpoint descriptors, store paths, and the database DSN.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/endpoint"
	"github.com/distr1/butido/internal/pkgmodel"
)

// EnvPrefix is the prefix viper strips from environment variable
// overrides (spec §4.9: "overridable by environment variables prefixed
// BUTIDO_").
const EnvPrefix = "BUTIDO"

// Configuration is the fully loaded and validated submit-wide config
// (spec §3 Configuration, spec §4.9).
type Configuration struct {
	Phases      []pkgmodel.PhaseName
	Endpoints   []endpoint.Descriptor
	StagingDir  string
	ReleaseDir  string
	DatabaseDSN string
	LogDir      string
}

// rawEndpoint mirrors the TOML shape of one [[endpoints]] table; it is
// decoded into endpoint.Descriptor by toDescriptor rather than tagging
// endpoint.Descriptor itself, keeping that type free of a serialization
// format opinion.
type rawEndpoint struct {
	Name                string   `mapstructure:"name"`
	Scheme              string   `mapstructure:"scheme"`
	Addr                string   `mapstructure:"addr"`
	Speed               uint32   `mapstructure:"speed"`
	MaxJobs             uint32   `mapstructure:"max_jobs"`
	RequiredImages      []string `mapstructure:"required_images"`
	RequiredVersions    []string `mapstructure:"required_versions"`
	RequiredAPIVersions []string `mapstructure:"required_api_versions"`
}

func (r rawEndpoint) toDescriptor() endpoint.Descriptor {
	return endpoint.Descriptor{
		Name:                r.Name,
		Transport:           endpoint.Transport{Scheme: r.Scheme, Addr: r.Addr},
		Speed:               r.Speed,
		MaxJobs:             r.MaxJobs,
		RequiredImages:      r.RequiredImages,
		RequiredVersions:    r.RequiredVersions,
		RequiredAPIVersions: r.RequiredAPIVersions,
	}
}

type raw struct {
	Phases      []string      `mapstructure:"phases"`
	Endpoints   []rawEndpoint `mapstructure:"endpoints"`
	StagingDir  string        `mapstructure:"staging_dir"`
	ReleaseDir  string        `mapstructure:"release_dir"`
	DatabaseDSN string        `mapstructure:"database_dsn"`
	LogDir      string        `mapstructure:"log_dir"`
}

// Load reads path (TOML) via spf13/viper, applies BUTIDO_-prefixed
// environment overrides, and validates the result. Environment variables
// only override keys the config file sets: with an empty path viper knows
// no keys, every field stays empty, and validation fails with
// ConfigInvalid.
func Load(path string) (Configuration, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, &berrors.ConfigInvalid{Reason: "reading " + path, Err: err}
		}
	}

	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return Configuration{}, &berrors.ConfigInvalid{Reason: "decoding configuration", Err: err}
	}

	cfg := Configuration{
		StagingDir:  r.StagingDir,
		ReleaseDir:  r.ReleaseDir,
		DatabaseDSN: r.DatabaseDSN,
		LogDir:      r.LogDir,
	}
	for _, p := range r.Phases {
		cfg.Phases = append(cfg.Phases, pkgmodel.PhaseName(p))
	}
	for _, e := range r.Endpoints {
		cfg.Endpoints = append(cfg.Endpoints, e.toDescriptor())
	}

	if err := cfg.validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// validate enforces the fields spec §4.9 requires to be non-empty before
// an Orchestrator can be built from this Configuration.
func (c Configuration) validate() error {
	if len(c.Phases) == 0 {
		return &berrors.ConfigInvalid{Reason: "phases must not be empty"}
	}
	if len(c.Endpoints) == 0 {
		return &berrors.ConfigInvalid{Reason: "endpoints must not be empty"}
	}
	for _, e := range c.Endpoints {
		if e.Name == "" {
			return &berrors.ConfigInvalid{Reason: "endpoint with empty name"}
		}
		if e.Transport.Scheme != "http" && e.Transport.Scheme != "unix" {
			return &berrors.ConfigInvalid{Reason: "endpoint " + e.Name + ": transport scheme must be http or unix"}
		}
		if e.MaxJobs == 0 {
			return &berrors.ConfigInvalid{Reason: "endpoint " + e.Name + ": max_jobs must be > 0"}
		}
	}
	if c.StagingDir == "" {
		return &berrors.ConfigInvalid{Reason: "staging_dir must not be empty"}
	}
	if c.ReleaseDir == "" {
		return &berrors.ConfigInvalid{Reason: "release_dir must not be empty"}
	}
	if c.DatabaseDSN == "" {
		return &berrors.ConfigInvalid{Reason: "database_dsn must not be empty"}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validTOML = `
phases = ["build", "test"]
staging_dir = "/var/lib/butido/staging"
release_dir = "/var/lib/butido/release"
database_dsn = "postgres://localhost/butido"
log_dir = "/var/log/butido"

[[endpoints]]
name = "local"
scheme = "unix"
addr = "/var/run/docker.sock"
speed = 10
max_jobs = 4
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "butido.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Phases) != 2 || cfg.Phases[0] != "build" || cfg.Phases[1] != "test" {
		t.Errorf("unexpected phases: %v", cfg.Phases)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Name != "local" {
		t.Errorf("unexpected endpoints: %v", cfg.Endpoints)
	}
	if cfg.Endpoints[0].Transport.Scheme != "unix" || cfg.Endpoints[0].Transport.Addr != "/var/run/docker.sock" {
		t.Errorf("unexpected transport: %+v", cfg.Endpoints[0].Transport)
	}
	if cfg.DatabaseDSN != "postgres://localhost/butido" {
		t.Errorf("unexpected database_dsn: %q", cfg.DatabaseDSN)
	}
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"no phases", `staging_dir="s"
release_dir="r"
database_dsn="d"
[[endpoints]]
name="e"
scheme="unix"
addr="a"
max_jobs=1
`},
		{"no endpoints", `phases=["build"]
staging_dir="s"
release_dir="r"
database_dsn="d"
`},
		{"bad scheme", `phases=["build"]
staging_dir="s"
release_dir="r"
database_dsn="d"
[[endpoints]]
name="e"
scheme="ftp"
addr="a"
max_jobs=1
`},
		{"zero max_jobs", `phases=["build"]
staging_dir="s"
release_dir="r"
database_dsn="d"
[[endpoints]]
name="e"
scheme="unix"
addr="a"
max_jobs=0
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.toml)); err == nil {
				t.Fatalf("expected ConfigInvalid, got nil")
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BUTIDO_DATABASE_DSN", "postgres://override/butido")
	cfg, err := Load(writeConfig(t, validTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDSN != "postgres://override/butido" {
		t.Errorf("expected env override to win, got %q", cfg.DatabaseDSN)
	}
}

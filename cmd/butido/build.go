package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/config"
	"github.com/distr1/butido/internal/dbstore"
	"github.com/distr1/butido/internal/endpoint"
	"github.com/distr1/butido/internal/env"
	"github.com/distr1/butido/internal/filestore"
	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/orchestrator"
	"github.com/distr1/butido/internal/pkgmodel"
	"github.com/distr1/butido/internal/pkgresolver"
	"github.com/distr1/butido/internal/sourcecache"
)

// cmdbuild implements `butido build <name> [<version>] -I <image> [-E ...]
// [--staging-dir PATH] [--release-dir PATH]` (spec §6, C9).
func cmdbuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	image := fs.String("I", "", "name of the docker image to use")
	stagingDirFlag := fs.String("staging-dir", "", "overwrite the staging directory")
	releaseDirFlag := fs.String("release-dir", "", "overwrite the release directory")
	var envs envFlags
	fs.Var(&envs, "E", `pass "key=value" or a bare environment variable name to every build job`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) < 1 {
		return xerrors.Errorf("build: package_name is required")
	}
	name := rest[0]
	var version string
	if len(rest) > 1 {
		version = rest[1]
	}
	if *image == "" {
		return xerrors.Errorf("build: -I <image> is required")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	if *stagingDirFlag != "" {
		cfg.StagingDir = *stagingDirFlag
	}
	if *releaseDirFlag != "" {
		cfg.ReleaseDir = *releaseDirFlag
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(env.Root, "staging")
	}
	if cfg.ReleaseDir == "" {
		cfg.ReleaseDir = filepath.Join(env.Root, "releases")
	}

	resolver := pkgresolver.FileResolver{Dir: resolverDir()}
	tree, err := resolver.Resolve(ctx, name, version)
	if err != nil {
		return xerrors.Errorf("resolving package tree: %w", err)
	}

	dag, err := job.Build(tree, cfg.Phases, pkgmodel.ImageName(*image))
	if err != nil {
		return xerrors.Errorf("building job dag: %w", err)
	}

	var runners []endpoint.Runner
	for _, d := range cfg.Endpoints {
		ep, err := endpoint.Setup(ctx, d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "endpoint %s excluded: %v\n", d.Name, err)
			continue
		}
		runners = append(runners, ep)
	}
	sched, err := endpoint.NewScheduler(runners)
	if err != nil {
		return err
	}

	submitUUID := uuid.New()
	staging, err := filestore.NewStagingStore(cfg.StagingDir, submitUUID.String())
	if err != nil {
		return xerrors.Errorf("creating staging store: %w", err)
	}
	stores := filestore.Merged{Staging: staging, Release: filestore.ReleaseStore{Root: cfg.ReleaseDir}}

	store, err := dbstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := dbstore.Migrate(store.DB()); err != nil {
		return xerrors.Errorf("applying migrations: %w", err)
	}

	o := &orchestrator.Orchestrator{
		Scheduler:   sched,
		Stores:      stores,
		SourceCache: sourcecache.Cache{Dir: cfg.StagingDir},
		Persister:   &dbstore.JobPersister{Store: store, SubmitUUID: submitUUID, SubmitTime: time.Now()},
		Reporter:    newTerminalReporter(os.Stderr),
		ExtraEnv:    envs.resolved(),
	}

	artifacts, jobErrors, err := o.Run(ctx, dag, cfg.Phases)
	if err != nil {
		return err
	}
	if len(jobErrors) > 0 {
		for jobUUID, jerr := range jobErrors {
			fmt.Fprintf(os.Stderr, "job %s failed: %v\n", jobUUID, jerr)
		}
		return xerrors.Errorf("build: %d job(s) failed", len(jobErrors))
	}

	for _, a := range artifacts {
		fmt.Println(a.Path)
	}
	return nil
}

func configPath() string {
	if p := flag.Lookup("config"); p != nil && p.Value.String() != "" {
		return p.Value.String()
	}
	if p := os.Getenv("BUTIDO_CONFIG"); p != "" {
		return p
	}
	// Fall back to $BUTIDO_ROOT/config.toml only if it actually exists;
	// config.Load requires an explicit path to resolve a missing file as
	// ConfigInvalid rather than silently relying on BUTIDO_-env overrides.
	if p := filepath.Join(env.Root, "config.toml"); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func resolverDir() string {
	if dir := os.Getenv("BUTIDO_PACKAGES"); dir != "" {
		return dir
	}
	return filepath.Join(env.Root, "pkg")
}

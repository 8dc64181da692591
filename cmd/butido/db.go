package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/config"
	"github.com/distr1/butido/internal/dbstore"
)

// cmddb implements `butido db {cli|artifacts|envvars|images|submits|jobs|job}`
// (spec §6).
func cmddb(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.Errorf("db: a subcommand is required (cli|artifacts|envvars|images|submits|jobs|job)")
	}
	sub, rest := args[0], args[1:]

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	if sub == "cli" {
		return dbcli(rest, cfg.DatabaseDSN)
	}

	store, err := dbstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	switch sub {
	case "artifacts":
		rows, err := store.ListArtifacts(ctx)
		if err != nil {
			return err
		}
		for _, a := range rows {
			fmt.Printf("%d\t%s\n", a.ID, a.Path)
		}
	case "envvars":
		rows, err := store.ListEnvVars(ctx)
		if err != nil {
			return err
		}
		for _, e := range rows {
			fmt.Printf("%d\t%s=%s\n", e.ID, e.Name, e.Value)
		}
	case "images":
		rows, err := store.ListImages(ctx)
		if err != nil {
			return err
		}
		for _, i := range rows {
			fmt.Printf("%d\t%s\n", i.ID, i.Name)
		}
	case "submits":
		rows, err := store.ListSubmits(ctx)
		if err != nil {
			return err
		}
		for _, s := range rows {
			fmt.Printf("%d\t%s\t%s\n", s.ID, s.UUID, s.SubmitTime.Format("2006-01-02T15:04:05Z07:00"))
		}
	case "jobs":
		rows, err := store.ListJobs(ctx)
		if err != nil {
			return err
		}
		for _, j := range rows {
			fmt.Printf("%d\t%s\n", j.ID, j.UUID)
		}
	case "job":
		return dbjob(ctx, store, rest)
	default:
		return xerrors.Errorf("db: unknown subcommand %q", sub)
	}
	return nil
}

func dbjob(ctx context.Context, store *dbstore.Store, args []string) error {
	fs := flag.NewFlagSet("db job", flag.ExitOnError)
	uuidFlag := fs.String("uuid", "", "uuid of the job to show")
	showLog := fs.Bool("show-log", false, "print the job's captured log text")
	showScript := fs.Bool("show-script", false, "print the job's rendered script")
	fs.Parse(args)

	if *uuidFlag == "" {
		return xerrors.Errorf("db job: -uuid is required")
	}
	jobUUID, err := uuid.Parse(*uuidFlag)
	if err != nil {
		return xerrors.Errorf("db job: %w", err)
	}

	rec, err := store.GetJob(ctx, jobUUID)
	if err != nil {
		return err
	}
	fmt.Printf("uuid:           %s\n", rec.UUID)
	fmt.Printf("container_hash: %s\n", rec.ContainerHash)
	if *showScript {
		fmt.Printf("script:\n%s\n", rec.ScriptText)
	}
	if *showLog {
		fmt.Printf("log:\n%s\n", rec.LogText)
	}
	return nil
}

// dbcli execs an interactive database client against the configured DSN
// (spec §6: "db cli --tool psql|pgcli").
func dbcli(args []string, dsn string) error {
	fs := flag.NewFlagSet("db cli", flag.ExitOnError)
	tool := fs.String("tool", "psql", "database client to launch (psql or pgcli)")
	fs.Parse(args)

	cmd := exec.Command(*tool, dsn)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

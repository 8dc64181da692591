package dbstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/distr1/butido/internal/job"
)

// JobPersister binds orchestrator.Persister to Store: it resolves the
// submit, endpoint, package and image rows a JobRecord references via the
// idempotent Ensure* helpers, inserts the job row, and then records its
// envvars and artifacts the same way, so a task retried after a crash
// never double-counts a dimension row (spec §4.7).
type JobPersister struct {
	Store      *Store
	SubmitUUID uuid.UUID
	SubmitTime time.Time
}

// PersistJob implements orchestrator.Persister. The whole sequence —
// every Ensure* dimension-row lookup, the job insert, and the
// job/envvar linkage — runs inside a single transaction (spec §4.2 step
// 1: "Within a single database transaction, insert the JobRecord"), so a
// crash mid-sequence never leaves a dimension row without its job row.
func (p *JobPersister) PersistJob(ctx context.Context, j job.Job, endpointName, containerHash, script, logText string, envVars []job.JobResource, stagedPaths []string) ([]job.Artifact, error) {
	var artifacts []job.Artifact

	err := p.Store.WithTx(ctx, func(tx *sqlx.Tx) error {
		submit, err := p.Store.EnsureSubmit(ctx, tx, p.SubmitUUID, p.SubmitTime)
		if err != nil {
			return err
		}
		ep, err := p.Store.EnsureEndpoint(ctx, tx, endpointName)
		if err != nil {
			return err
		}
		pkg, err := p.Store.EnsurePackage(ctx, tx, j.Package.Name, j.Package.Version)
		if err != nil {
			return err
		}
		img, err := p.Store.EnsureImage(ctx, tx, string(j.Image))
		if err != nil {
			return err
		}

		rec := JobRecord{
			SubmitID:      submit.ID,
			EndpointID:    ep.ID,
			PackageID:     pkg.ID,
			ImageID:       img.ID,
			ContainerHash: containerHash,
			ScriptText:    script,
			LogText:       logText,
			UUID:          j.UUID,
		}
		rec, err = p.Store.InsertJob(ctx, tx, rec)
		if err != nil {
			return err
		}

		for _, ev := range envVars {
			row, err := p.Store.EnsureEnvVar(ctx, tx, ev.Key, ev.Value)
			if err != nil {
				return err
			}
			if err := p.Store.LinkJobEnv(ctx, tx, rec.ID, row.ID); err != nil {
				return err
			}
		}

		artifacts = make([]job.Artifact, 0, len(stagedPaths))
		for _, path := range stagedPaths {
			row, err := p.Store.EnsureArtifact(ctx, tx, path)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, job.Artifact{Path: row.Path, ProducingJobUUID: j.UUID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

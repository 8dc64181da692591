package endpoint

import (
	"context"

	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/logparser"
)

// LogSink receives every parsed log item a running job produces, in
// order (spec §4.1 step 5).
type LogSink interface {
	Accept(item logparser.LogItem)
}

// Staging is the subset of filestore.StagingStore a Runner needs: the
// ability to ingest the tar stream copied out of a finished container
// (spec §4.1 step 6).
type Staging interface {
	WriteFromTarStream(ctx context.Context, r interface {
		Read(p []byte) (int, error)
	}) ([]string, error)
}

// Runner is the behavior the scheduler depends on: one container host
// capable of running a RunnableJob. The Docker-backed Endpoint
// implements this, and so does the in-memory fake used by the
// orchestrator's tests (spec §8: "a fake in-memory Endpoint
// implementation").
type Runner interface {
	Name() string
	Speed() uint32
	MaxJobs() uint32

	// RunJob executes runnable to completion, streaming log items to
	// sink and ingesting the container's output directory into staging.
	// It returns the written artifact paths (relative to staging), the
	// container hash Docker assigned, and an error wrapping
	// berrors.JobExecFailed on non-zero exit.
	RunJob(ctx context.Context, runnable job.RunnableJob, sink LogSink, staging Staging) (paths []string, containerHash string, err error)
}

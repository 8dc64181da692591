package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/endpoint"
	"github.com/distr1/butido/internal/filestore"
	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/logparser"
	"github.com/distr1/butido/internal/pkgmodel"
	"github.com/distr1/butido/internal/sourcecache"
)

// Persister binds a completed job's container outcome to persisted
// state (C7, spec §4.7). PersistJob is called from within the "critical
// section on success" that spec §4.2 describes: given the container
// hash and captured log, it performs the idempotent
// insert-then-select and returns the Artifact list translated from the
// staged paths. A Persister that returns an error causes the job to be
// reported as failed even though its container succeeded (spec §4.2:
// "On any DB error ... the job is reported as failed").
type Persister interface {
	PersistJob(ctx context.Context, j job.Job, endpointName, containerHash, script, logText string, envVars []job.JobResource, stagedPaths []string) ([]job.Artifact, error)
}

// collectingSink implements endpoint.LogSink by accumulating the text of
// every item for persistence (spec §4.2: "full captured log text").
type collectingSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *collectingSink) Accept(item logparser.LogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(item.String())
	s.buf.WriteByte('\n')
}

func (s *collectingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Task is one JobTask (C5, spec §4.5): one goroutine per DAG node,
// holding a receiver fed by upstream tasks and a list of senders to
// downstream tasks (or the Orchestrator's root sink, for the one node
// nothing depends on).
type Task struct {
	Def JobDefWithPhases

	Receiver <-chan Result
	Senders  []Sender

	Scheduler   *endpoint.Scheduler
	Stores      filestore.Merged
	SourceCache sourcecache.Cache
	Persister   Persister
	Reporter    Reporter

	// ExtraEnv is a submit-wide "KEY=VALUE" list passed to every job's
	// container (the CLI's "-E" flag, spec §6 / property 8).
	ExtraEnv []string

	EndpointName string // recorded for persistence once the job actually ran
}

// JobDefWithPhases is job.JobDefinition plus the phase list used to
// render its script (kept alongside rather than folded into job.Job so
// that job.JobDefinition stays a pure data-model type, as spec §3
// defines it).
type JobDefWithPhases struct {
	job.JobDefinition
	Phases []pkgmodel.PhaseName
}

// Run executes the full JobTask protocol of spec §4.5 and returns once
// the task's outcome has been forwarded downstream: on success to every
// downstream sender, on failure to the first one only (for the root, the
// Orchestrator's sink). It never returns an error
// itself: every failure mode is a Result sent downstream, matching the
// original's "task failures are JobResult values, not task panics."
func (t Task) Run(ctx context.Context) error {
	defer func() {
		for _, sender := range t.Senders {
			sender.Done()
		}
	}()

	t.Reporter.Report(t.Def.Job.UUID, StateWaiting, "")

	receivedArtifacts := make(map[uuid.UUID][]job.Artifact)
	receivedErrors := make(map[uuid.UUID]error)

	allDepsIn := func() bool {
		for dep := range t.Def.Dependencies {
			if _, ok := receivedArtifacts[dep]; !ok {
				return false
			}
		}
		return true
	}

	// 1. Collect phase.
	closed := false
	for !allDepsIn() && !closed {
		res, ok := <-t.Receiver
		if !ok {
			closed = true
			break
		}
		merge(res, receivedArtifacts, receivedErrors)
	}
	if closed && !allDepsIn() && len(receivedErrors) == 0 {
		missing := missingDeps(t.Def.Dependencies, receivedArtifacts)
		return t.forwardOne(errResult(map[uuid.UUID]error{
			t.Def.Job.UUID: &berrors.OrphanedDependencies{JobUUID: t.Def.Job.UUID, Missing: missing},
		}))
	}

	// 2. Drain phase: absorb late diamond fan-in without blocking.
drain:
	for !closed {
		select {
		case res, ok := <-t.Receiver:
			if !ok {
				closed = true
				break drain
			}
			merge(res, receivedArtifacts, receivedErrors)
		default:
			break drain
		}
	}

	// 3. Short-circuit on error.
	if len(receivedErrors) > 0 {
		t.Reporter.Report(t.Def.Job.UUID, StateFailed, "upstream failure")
		return t.forwardOne(errResult(receivedErrors))
	}

	// 4. Build phase.
	t.Reporter.Report(t.Def.Job.UUID, StatePreparing, "")
	runnable, err := t.build(ctx, receivedArtifacts)
	if err != nil {
		return t.forwardOne(errResult(map[uuid.UUID]error{t.Def.Job.UUID: err}))
	}

	// 5. Schedule phase.
	t.Reporter.Report(t.Def.Job.UUID, StateScheduling, "")
	sink := &collectingSink{}
	sj := t.Scheduler.ScheduleJob(runnable, sink, stagingAdapter{t.Stores.Staging})

	t.Reporter.Report(t.Def.Job.UUID, StateRunning, "")
	paths, containerHash, endpointName, runErr := sj.Run(ctx)
	if runErr != nil {
		t.Reporter.Report(t.Def.Job.UUID, StateFailed, runErr.Error())
		return t.forwardOne(errResult(map[uuid.UUID]error{t.Def.Job.UUID: runErr}))
	}
	t.EndpointName = endpointName

	var envVars []job.JobResource
	for _, r := range runnable.Resources {
		if r.Kind == job.ResourceEnvironment {
			envVars = append(envVars, r)
		}
	}

	artifacts, persistErr := t.Persister.PersistJob(ctx, t.Def.Job, t.EndpointName, containerHash, runnable.Script, sink.String(), envVars, paths)
	if persistErr != nil {
		wrapped := &berrors.DbWriteFailed{JobUUID: t.Def.Job.UUID, Err: persistErr}
		t.Reporter.Report(t.Def.Job.UUID, StateFailed, wrapped.Error())
		return t.forwardOne(errResult(map[uuid.UUID]error{t.Def.Job.UUID: wrapped}))
	}

	receivedArtifacts[t.Def.Job.UUID] = artifacts
	t.Reporter.Report(t.Def.Job.UUID, StateDone, "")
	for _, sender := range t.Senders {
		sender.Ch <- okResult(cloneArtifacts(receivedArtifacts))
	}
	return nil
}

// build renders the job's script and resolves its source tarball and
// upstream artifacts into a RunnableJob (spec §4.5 step 4).
func (t Task) build(ctx context.Context, received map[uuid.UUID][]job.Artifact) (job.RunnableJob, error) {
	pkg := t.Def.Job.Package
	script := job.RenderScript(t.Def.Phases, pkg)

	var resources []job.JobResource
	for _, kv := range t.ExtraEnv {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		resources = append(resources, job.JobResource{Kind: job.ResourceEnvironment, Key: key, Value: value})
	}
	if pkg.Source.URL != "" {
		path, err := t.SourceCache.Fetch(ctx, pkg.Source)
		if err != nil {
			return job.RunnableJob{}, xerrors.Errorf("job %s: fetching source: %w", t.Def.Job.UUID, err)
		}
		resources = append(resources, job.JobResource{Kind: job.ResourceEnvironment, Key: "BUTIDO_SOURCE", Value: path})
	}
	for _, artifacts := range received {
		for _, a := range artifacts {
			resources = append(resources, job.JobResource{Kind: job.ResourceArtifact, Artifact: a})
		}
	}

	return job.RunnableJob{Job: t.Def.Job, Script: script, Resources: resources}, nil
}

// forwardOne sends res to exactly one downstream sender (spec §4.5 step
// 3: "forward Err(received_errors) to exactly one downstream sender (the
// set is equivalent)").
func (t Task) forwardOne(res Result) error {
	if len(t.Senders) == 0 {
		return nil
	}
	t.Senders[0].Ch <- res
	return nil
}

func merge(res Result, artifacts map[uuid.UUID][]job.Artifact, errs map[uuid.UUID]error) {
	for k, v := range res.Artifacts {
		artifacts[k] = v
	}
	for k, v := range res.Errors {
		errs[k] = v
	}
}

func missingDeps(deps map[uuid.UUID]struct{}, have map[uuid.UUID][]job.Artifact) []uuid.UUID {
	var missing []uuid.UUID
	for dep := range deps {
		if _, ok := have[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// stagingAdapter narrows *filestore.StagingStore to endpoint.Staging's
// minimal structural interface.
type stagingAdapter struct {
	s *filestore.StagingStore
}

func (a stagingAdapter) WriteFromTarStream(ctx context.Context, r interface {
	Read(p []byte) (int, error)
}) ([]string, error) {
	return a.s.WriteFromTarStream(ctx, r)
}

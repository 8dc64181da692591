package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/endpoint"
	"github.com/distr1/butido/internal/filestore"
	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/pkgmodel"
	"github.com/distr1/butido/internal/sourcecache"
)

// fakeRunner runs every job instantly, recording call order, optionally
// failing for specific package names.
type fakeRunner struct {
	mu        sync.Mutex
	callOrder []string
	failNames map[string]bool
}

func (f *fakeRunner) Name() string    { return "fake" }
func (f *fakeRunner) Speed() uint32   { return 1 }
func (f *fakeRunner) MaxJobs() uint32 { return 100 }

func (f *fakeRunner) RunJob(ctx context.Context, runnable job.RunnableJob, sink endpoint.LogSink, staging endpoint.Staging) ([]string, string, error) {
	f.mu.Lock()
	f.callOrder = append(f.callOrder, runnable.Job.Package.Name)
	f.mu.Unlock()

	if f.failNames[runnable.Job.Package.Name] {
		return nil, "hash", &berrors.JobExecFailed{JobUUID: runnable.Job.UUID, Exit: 1, LogTail: "boom"}
	}
	return []string{runnable.Job.Package.Name + ".out"}, "hash", nil
}

// fakePersister records every persisted job and translates staged paths
// into Artifacts directly (no real database).
type fakePersister struct {
	mu        sync.Mutex
	persisted []uuid.UUID
}

func (p *fakePersister) PersistJob(ctx context.Context, j job.Job, endpointName, containerHash, script, logText string, envVars []job.JobResource, stagedPaths []string) ([]job.Artifact, error) {
	p.mu.Lock()
	p.persisted = append(p.persisted, j.UUID)
	p.mu.Unlock()

	artifacts := make([]job.Artifact, len(stagedPaths))
	for i, path := range stagedPaths {
		artifacts[i] = job.Artifact{Path: path, ProducingJobUUID: j.UUID}
	}
	return artifacts, nil
}

func newTestOrchestrator(t *testing.T, runner *fakeRunner, persister *fakePersister) *Orchestrator {
	t.Helper()
	sched, err := endpoint.NewScheduler([]endpoint.Runner{runner})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	dir := t.TempDir()
	staging, err := filestore.NewStagingStore(dir, "submit")
	if err != nil {
		t.Fatalf("NewStagingStore: %v", err)
	}
	return &Orchestrator{
		Scheduler:   sched,
		Stores:      filestore.Merged{Staging: staging, Release: filestore.ReleaseStore{Root: dir}},
		SourceCache: sourcecache.Cache{Dir: dir},
		Persister:   persister,
		Reporter:    NoopReporter{},
	}
}

func chainTree(t *testing.T) pkgmodel.Tree {
	t.Helper()
	packages := []pkgmodel.Package{
		{Name: "c", Version: "1"},
		{Name: "b", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"c"}}},
		{Name: "a", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"b"}}},
	}
	tree, err := pkgmodel.NewTree(packages, "a")
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func diamondTree(t *testing.T) pkgmodel.Tree {
	t.Helper()
	packages := []pkgmodel.Package{
		{Name: "d", Version: "1"},
		{Name: "b", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"d"}}},
		{Name: "c", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"d"}}},
		{Name: "a", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"b", "c"}}},
	}
	tree, err := pkgmodel.NewTree(packages, "a")
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func TestOrchestratorLinearChain(t *testing.T) {
	runner := &fakeRunner{}
	persister := &fakePersister{}
	o := newTestOrchestrator(t, runner, persister)

	dag, err := job.Build(chainTree(t), []pkgmodel.PhaseName{"build"}, "img")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	artifacts, errs, err := o.Run(context.Background(), dag, []pkgmodel.PhaseName{"build"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d: %v", len(artifacts), artifacts)
	}
	if len(runner.callOrder) != 3 {
		t.Fatalf("expected 3 container runs, got %v", runner.callOrder)
	}
	// c must run before b, and b before a.
	pos := map[string]int{}
	for i, name := range runner.callOrder {
		pos[name] = i
	}
	if pos["c"] > pos["b"] || pos["b"] > pos["a"] {
		t.Errorf("expected order c,b,a; got %v", runner.callOrder)
	}
}

func TestOrchestratorDiamond(t *testing.T) {
	runner := &fakeRunner{}
	persister := &fakePersister{}
	o := newTestOrchestrator(t, runner, persister)

	dag, err := job.Build(diamondTree(t), []pkgmodel.PhaseName{"build"}, "img")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	artifacts, errs, err := o.Run(context.Background(), dag, []pkgmodel.PhaseName{"build"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(artifacts) != 4 {
		t.Fatalf("expected 4 artifacts (d, b, c, a), got %d: %v", len(artifacts), artifacts)
	}
	pos := map[string]int{}
	for i, name := range runner.callOrder {
		pos[name] = i
	}
	if pos["d"] > pos["b"] || pos["d"] > pos["c"] {
		t.Errorf("expected d before b and c; got %v", runner.callOrder)
	}
	if pos["b"] > pos["a"] || pos["c"] > pos["a"] {
		t.Errorf("expected b and c before a; got %v", runner.callOrder)
	}
}

func TestOrchestratorPartialFailure(t *testing.T) {
	runner := &fakeRunner{failNames: map[string]bool{"c": true}}
	persister := &fakePersister{}
	o := newTestOrchestrator(t, runner, persister)

	dag, err := job.Build(diamondTree(t), []pkgmodel.PhaseName{"build"}, "img")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	artifacts, errs, err := o.Run(context.Background(), dag, []pkgmodel.PhaseName{"build"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %v", len(errs), errs)
	}

	var cUUID uuid.UUID
	for _, def := range dag.Definitions() {
		if def.Job.Package.Name == "c" {
			cUUID = def.Job.UUID
		}
	}
	if _, ok := errs[cUUID]; !ok {
		t.Errorf("expected error keyed by c's uuid, got keys %v", keysOf(errs))
	}

	// a must not have run (it depends on c, which failed).
	for _, name := range runner.callOrder {
		if name == "a" {
			t.Errorf("a should not have run; callOrder=%v", runner.callOrder)
		}
	}
	// d and b still run, but the root failed, so the result is the error
	// branch and carries no artifacts.
	if len(artifacts) != 0 {
		t.Errorf("result should report the error branch, not artifacts, when the root failed; got %v", artifacts)
	}
}

func keysOf(m map[uuid.UUID]error) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k.String())
	}
	return out
}

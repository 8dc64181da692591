package endpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/job"
)

// slot is one endpoint's admission state: a counting semaphore of size
// MaxJobs (spec §5: "enforced by a counting semaphore of size max_jobs").
type slot struct {
	runner   Runner
	capacity chan struct{}

	mu       sync.Mutex
	inFlight uint32
}

func newSlot(r Runner) *slot {
	return &slot{runner: r, capacity: make(chan struct{}, r.MaxJobs())}
}

func (s *slot) inFlightCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// tryAcquire takes a capacity token if one is immediately available,
// returning ok=false without blocking otherwise. release is guaranteed to
// be callable exactly once per successful acquire, even on cancellation
// of whatever the caller does next, matching spec §5's "scoped
// acquisition with guaranteed release on all exit paths."
func (s *slot) tryAcquire() (release func(), ok bool) {
	select {
	case s.capacity <- struct{}{}:
	default:
		return nil, false
	}
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			<-s.capacity
		})
	}
	return release, true
}

// Scheduler owns the pool of endpoints (C2, spec §4.2) and admits
// runnable jobs onto them according to the speed-then-load-then-name
// policy (spec §9 Open Question (a)).
type Scheduler struct {
	mu    sync.Mutex
	slots []*slot
}

// NewScheduler builds a Scheduler over already-set-up runners. Setting up
// each runner (establishing its transport, checking compatibility) is
// Endpoint.Setup's job, called once per descriptor before constructing
// the pool; a descriptor whose Setup failed is simply omitted here
// (spec §4.2: "A failed endpoint is excluded from the pool but does not
// fail setup unless no endpoint is ready").
func NewScheduler(runners []Runner) (*Scheduler, error) {
	if len(runners) == 0 {
		return nil, xerrors.Errorf("endpoint scheduler: no endpoints available")
	}
	slots := make([]*slot, len(runners))
	for i, r := range runners {
		slots[i] = newSlot(r)
	}
	return &Scheduler{slots: slots}, nil
}

// ScheduledJob is a handle returned by ScheduleJob; Run blocks
// cooperatively until an endpoint slot is free, then runs the job there.
type ScheduledJob struct {
	sched    *Scheduler
	runnable job.RunnableJob
	sink     LogSink
	staging  Staging
}

// ScheduleJob returns a handle whose Run will block until an endpoint
// slot is free, then execute runnable there (spec §4.2).
func (s *Scheduler) ScheduleJob(runnable job.RunnableJob, sink LogSink, staging Staging) ScheduledJob {
	return ScheduledJob{sched: s, runnable: runnable, sink: sink, staging: staging}
}

// Run waits for an endpoint admission slot (highest speed first, ties
// broken by least in-flight then by name, spec §4.2) and then runs the
// job on it, returning the artifact paths, the container hash, and the
// name of the endpoint that actually ran the job (spec §3 JobRecord,
// §4.2: the critical section on success records the endpoint that
// produced the container, mirroring the original's Job::create taking
// the chosen &Endpoint).
func (j ScheduledJob) Run(ctx context.Context) ([]string, string, string, error) {
	sl, release, err := j.sched.admit(ctx)
	if err != nil {
		return nil, "", "", err
	}
	defer release()

	paths, containerHash, err := sl.runner.RunJob(ctx, j.runnable, j.sink, j.staging)
	return paths, containerHash, sl.runner.Name(), err
}

// admit blocks until some endpoint has a free slot, then returns it
// already acquired. Candidates are re-evaluated on every attempt, by
// speed, then load, then name. Waiters are not queued: each one retries
// after waitForAny's poll interval, and whichever retries first after a
// slot frees takes it, so admission order across waiters is not FIFO.
func (s *Scheduler) admit(ctx context.Context) (*slot, func(), error) {
	for {
		s.mu.Lock()
		ordered := make([]*slot, len(s.slots))
		copy(ordered, s.slots)
		s.mu.Unlock()

		sort.Slice(ordered, func(i, k int) bool {
			a, b := ordered[i], ordered[k]
			if a.runner.Speed() != b.runner.Speed() {
				return a.runner.Speed() > b.runner.Speed()
			}
			if a.inFlightCount() != b.inFlightCount() {
				return a.inFlightCount() < b.inFlightCount()
			}
			return a.runner.Name() < b.runner.Name()
		})

		for _, sl := range ordered {
			if release, ok := sl.tryAcquire(); ok {
				return sl, release, nil
			}
		}

		// No endpoint had a free slot; wait for any one of them to free,
		// or for cancellation.
		if err := waitForAny(ctx, ordered); err != nil {
			return nil, nil, err
		}
	}
}

// waitForAny blocks for one poll interval (5ms) or until ctx is
// cancelled, whichever comes first; it does not inspect the slots itself,
// admit retries them after it returns. A short poll interval is used in place of per-slot
// notification channels, which would require every release() to fan out
// to an unbounded set of waiters; admission latency is bounded by this
// interval, which is negligible next to real job durations.
func waitForAny(ctx context.Context, slots []*slot) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

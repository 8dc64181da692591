package endpoint

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/logparser"
	"github.com/distr1/butido/internal/pkgmodel"
)

// fakeRunner is the in-memory Endpoint fake spec §8 calls for: it records
// call order and simulates configurable latency without touching a real
// Docker daemon.
type fakeRunner struct {
	name     string
	speed    uint32
	maxJobs  uint32
	sleep    time.Duration
	fail     bool

	mu        sync.Mutex
	running   int
	maxSeen   int
	callOrder []string
}

func (f *fakeRunner) Name() string    { return f.name }
func (f *fakeRunner) Speed() uint32   { return f.speed }
func (f *fakeRunner) MaxJobs() uint32 { return f.maxJobs }

func (f *fakeRunner) RunJob(ctx context.Context, runnable job.RunnableJob, sink LogSink, staging Staging) ([]string, string, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.callOrder = append(f.callOrder, runnable.Job.Package.Name)
	f.mu.Unlock()

	time.Sleep(f.sleep)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if f.fail {
		return nil, "hash", errFake
	}
	return []string{runnable.Job.Package.Name + ".out"}, "hash", nil
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "fake failure" }

func TestSchedulerCapacityBound(t *testing.T) {
	runner := &fakeRunner{name: "ep1", speed: 1, maxJobs: 3, sleep: 20 * time.Millisecond}
	sched, err := NewScheduler([]Runner{runner})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rj := job.RunnableJob{Job: job.Job{Package: pkgNamed(n)}}
			sj := sched.ScheduleJob(rj, noopSink{}, noopStaging{})
			if _, _, _, err := sj.Run(context.Background()); err != nil {
				t.Errorf("Run: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if runner.maxSeen > 3 {
		t.Errorf("observed %d concurrent jobs, want <= 3", runner.maxSeen)
	}
}

func TestSchedulerPrefersFastestEndpoint(t *testing.T) {
	fast := &fakeRunner{name: "fast", speed: 100, maxJobs: 1, sleep: time.Millisecond}
	slow := &fakeRunner{name: "slow", speed: 10, maxJobs: 1, sleep: time.Millisecond}
	sched, err := NewScheduler([]Runner{slow, fast})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	rj := job.RunnableJob{Job: job.Job{Package: pkgNamed(0)}}
	sj := sched.ScheduleJob(rj, noopSink{}, noopStaging{})
	if _, hash, name, err := sj.Run(context.Background()); err != nil || hash != "hash" {
		t.Fatalf("Run: hash=%q err=%v", hash, err)
	} else if name != "fast" {
		t.Errorf("expected endpoint name %q, got %q", "fast", name)
	}

	if len(fast.callOrder) != 1 {
		t.Errorf("expected the fast endpoint to run the job, callOrder=%v (slow=%v)", fast.callOrder, slow.callOrder)
	}
	if len(slow.callOrder) != 0 {
		t.Errorf("expected the slow endpoint not to run, callOrder=%v", slow.callOrder)
	}
}

func pkgNamed(n int) pkgmodel.Package {
	return pkgmodel.Package{Name: fmt.Sprintf("pkg-%d", n), Version: "1"}
}

type noopSink struct{}

func (noopSink) Accept(logparser.LogItem) {}

type noopStaging struct{}

func (noopStaging) WriteFromTarStream(ctx context.Context, r interface {
	Read(p []byte) (int, error)
}) ([]string, error) {
	return nil, nil
}

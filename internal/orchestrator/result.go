// Package orchestrator implements JobTask (C5) and Orchestrator (C6),
// spec §4.5-§4.6 — the mesh-of-tasks construction ported directly from
// original_source/src/orchestrator/orchestrator.rs: one goroutine per
// DAG node, connected by bounded channels, collecting upstream results,
// short-circuiting on error, and forwarding the accumulated artifact map
// to every downstream consumer on success.
package orchestrator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/distr1/butido/internal/job"
)

// Result is the JobResult sum type of spec §4.5: Ok carries the
// accumulated artifact map keyed by producing job uuid; Err carries the
// accumulated error map keyed by failing job uuid. Exactly one of
// Artifacts/Errors is populated by construction.
type Result struct {
	Artifacts map[uuid.UUID][]job.Artifact
	Errors    map[uuid.UUID]error
}

// IsErr reports whether this result is the Err variant.
func (r Result) IsErr() bool { return len(r.Errors) > 0 }

func okResult(artifacts map[uuid.UUID][]job.Artifact) Result {
	return Result{Artifacts: artifacts}
}

func errResult(errs map[uuid.UUID]error) Result {
	return Result{Errors: errs}
}

// cloneArtifacts makes a shallow copy of an artifact map so that each
// downstream sender observes an independent value (spec §4.5: "Cloning
// is required because the DAG may fan out", spec §9: "acceptable because
// artifacts are small handles, not blobs").
func cloneArtifacts(m map[uuid.UUID][]job.Artifact) map[uuid.UUID][]job.Artifact {
	out := make(map[uuid.UUID][]job.Artifact, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneErrors(m map[uuid.UUID]error) map[uuid.UUID]error {
	out := make(map[uuid.UUID]error, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Sender is one of a Task's downstream edges: the channel itself, plus
// Done, which the Task calls exactly once when it finishes (whether or
// not it actually sent on Ch). A receiving node's channel has as many
// senders as it has dependencies; Done reference-counts those down and
// closes the channel once every predecessor has finished, so a node
// blocked waiting on a dependency that forwarded its error to a
// *different* sibling still observes closure instead of hanging forever
// (spec §4.5 step 3: errors forward to exactly one sender, not all).
type Sender struct {
	Ch   chan<- Result
	Done func()
}

// closer backs the Done callback for one node's receive channel: it
// closes the channel once `remaining` predecessors have each called
// done() exactly once.
type closer struct {
	mu        sync.Mutex
	remaining int
	ch        chan Result
	closed    bool
}

func newCloser(ch chan Result, remaining int) *closer {
	c := &closer{ch: ch, remaining: remaining}
	if remaining <= 0 {
		c.closed = true
		close(ch)
	}
	return c
}

func (c *closer) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.remaining--
	if c.remaining <= 0 {
		c.closed = true
		close(c.ch)
	}
}

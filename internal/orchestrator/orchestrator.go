package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/endpoint"
	"github.com/distr1/butido/internal/filestore"
	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/pkgmodel"
	"github.com/distr1/butido/internal/sourcecache"
)

// channelCapacity bounds fan-in per node (spec §4.6 step 1, spec §9:
// "heuristic ceiling... no job depends on >100 others").
const channelCapacity = 100

// Orchestrator wires a job.Dag into a mesh of Tasks and returns the
// submit-wide artifact list and error map (C6, spec §4.6). Grounded
// directly on original_source/src/orchestrator/orchestrator.rs's
// run_tree: allocate one channel per node, compute downstream sender
// lists in a second pass, spawn every task, and await the root sink
// exactly once.
type Orchestrator struct {
	Scheduler   *endpoint.Scheduler
	Stores      filestore.Merged
	SourceCache sourcecache.Cache
	Persister   Persister
	Reporter    Reporter
	ExtraEnv    []string
}

// Run builds the mesh for dag (whose jobs all share phases for script
// rendering) and runs it to completion, returning the final artifact
// list and the per-job error map.
func (o *Orchestrator) Run(ctx context.Context, dag job.Dag, phases []pkgmodel.PhaseName) ([]job.Artifact, map[uuid.UUID]error, error) {
	reporter := o.Reporter
	if reporter == nil {
		reporter = NoopReporter{}
	}

	defs := dag.Definitions()

	// Pass 1: allocate one channel per node, plus a closer that closes it
	// once every predecessor (one per dependency) has finished sending.
	// Without this, a node waiting on several dependencies would block
	// forever the moment one of them forwarded its error to a *different*
	// sibling instead of to it (spec §4.5 step 3 forwards to exactly one
	// sender, never all).
	type node struct {
		def        JobDefWithPhases
		recvCh     chan Result
		closer     *closer
		downstream []Sender
	}
	nodes := make(map[uuid.UUID]*node, len(defs))
	for _, def := range defs {
		ch := make(chan Result, channelCapacity)
		nodes[def.Job.UUID] = &node{
			def:    JobDefWithPhases{JobDefinition: def, Phases: phases},
			recvCh: ch,
			closer: newCloser(ch, len(def.Dependencies)),
		}
	}

	// Pass 2: for every node, find every OTHER node whose dependency set
	// contains it, and add that node as a downstream Sender. A node whose
	// downstream list stays empty is the root.
	for _, n := range nodes {
		for _, other := range nodes {
			if other.def.DependsOn(n.def.Job.UUID) {
				n.downstream = append(n.downstream, Sender{Ch: other.recvCh, Done: other.closer.done})
			}
		}
	}

	rootSink := make(chan Result, 1)
	rootFound := false
	for _, n := range nodes {
		if len(n.downstream) == 0 {
			n.downstream = []Sender{{Ch: rootSink, Done: func() {}}}
			rootFound = true
		}
	}
	if !rootFound {
		return nil, nil, xerrors.Errorf("orchestrator: no root node found in dag")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		t := Task{
			Def:          n.def,
			Receiver:     n.recvCh,
			Senders:      n.downstream,
			Scheduler:    o.Scheduler,
			Stores:       o.Stores,
			SourceCache:  o.SourceCache,
			Persister:    o.Persister,
			Reporter:     reporter,
			ExtraEnv:     o.ExtraEnv,
			EndpointName: "",
		}
		g.Go(func() error {
			return t.Run(gctx)
		})
	}

	// Every task, including the root, sends its outcome to its senders
	// before returning, so by the time every goroutine in the mesh has
	// finished, rootSink's buffered slot (capacity 1) already holds the
	// root's result, if it produced one.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var result Result
	select {
	case result = <-rootSink:
	default:
		return nil, nil, &berrors.NoRootResult{}
	}

	if result.IsErr() {
		return nil, result.Errors, nil
	}

	var artifacts []job.Artifact
	for _, list := range result.Artifacts {
		artifacts = append(artifacts, list...)
	}
	return artifacts, map[uuid.UUID]error{}, nil
}

package job

import (
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/pkgmodel"
)

// Dag is the JobDag of spec §3/§4.4: an immutable map of uuid to
// JobDefinition, with the invariant that every referenced uuid exists as
// a key, the graph is acyclic, and exactly one node is the root (nothing
// depends on it).
type Dag struct {
	defs map[uuid.UUID]JobDefinition
	root uuid.UUID
}

// Definitions returns every JobDefinition in the dag, in unspecified
// order (spec §4.4: "Iteration order is unspecified").
func (d Dag) Definitions() []JobDefinition {
	out := make([]JobDefinition, 0, len(d.defs))
	for _, def := range d.defs {
		out = append(out, def)
	}
	return out
}

// Lookup returns the JobDefinition for a given uuid, if present.
func (d Dag) Lookup(id uuid.UUID) (JobDefinition, bool) {
	def, ok := d.defs[id]
	return def, ok
}

// Root returns the uuid of the job nothing else depends on.
func (d Dag) Root() uuid.UUID { return d.root }

// idNode adapts a uuid to gonum's graph.Node. Its int64 node ID is the
// uuid's first 8 bytes read big-endian, negated if negative
// (collision-astronomically-unlikely), so the graph need not keep a
// second id allocator alongside the uuid map.
type idNode struct {
	id  int64
	job uuid.UUID
}

func (n idNode) ID() int64 { return n.id }

func nodeID(id uuid.UUID) int64 {
	b := id[:8]
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	if v < 0 {
		v = -v
	}
	return v
}

// Build derives a JobDag from a resolved package tree: one Job per
// package, bound to the given image and phase list, with dependency uuid
// sets computed from the package's four dependency categories (spec
// §4.4, §3's JobDefinition rule). Grounded on the teacher's
// internal/batch/batch.go graph construction, which builds the same
// gonum.DirectedGraph shape from distri package dependencies and
// validates it with topo.Sort before scheduling.
func Build(tree pkgmodel.Tree, phases []pkgmodel.PhaseName, image pkgmodel.ImageName) (Dag, error) {
	packages := tree.Packages()

	jobUUIDByName := make(map[string]uuid.UUID, len(packages))
	jobByName := make(map[string]Job, len(packages))
	for _, pkg := range packages {
		id := uuid.New()
		jobUUIDByName[pkg.Name] = id
		jobByName[pkg.Name] = Job{
			UUID:    id,
			Package: pkg,
			Image:   image,
			Phases:  phases,
		}
	}

	g := simple.NewDirectedGraph()
	nodeOf := make(map[uuid.UUID]idNode, len(packages))
	for _, pkg := range packages {
		id := jobUUIDByName[pkg.Name]
		n := idNode{id: nodeID(id), job: id}
		nodeOf[id] = n
		g.AddNode(n)
	}

	defs := make(map[uuid.UUID]JobDefinition, len(packages))
	dependedOn := make(map[uuid.UUID]bool, len(packages))

	for _, pkg := range packages {
		jobID := jobUUIDByName[pkg.Name]
		deps := make(map[uuid.UUID]struct{})
		for _, depName := range pkg.Dependencies.All() {
			depID, ok := jobUUIDByName[depName]
			if !ok {
				return Dag{}, xerrors.Errorf("package %q depends on %q, which is not present in the tree", pkg.Name, depName)
			}
			deps[depID] = struct{}{}
			dependedOn[depID] = true
			// Edge points from the dependency to the dependent, so that
			// topo.Sort orders dependencies before dependents (matching
			// JobTask's requirement that a job only runs once its
			// predecessors have reported in).
			g.SetEdge(g.NewEdge(nodeOf[depID], nodeOf[jobID]))
		}
		defs[jobID] = JobDefinition{Job: jobByName[pkg.Name], Dependencies: deps}
	}

	if _, err := topo.Sort(g); err != nil {
		cycle := extractCycle(err)
		return Dag{}, &berrors.CycleInDag{Cycle: cycle}
	}

	var root uuid.UUID
	rootCount := 0
	for _, pkg := range packages {
		id := jobUUIDByName[pkg.Name]
		if !dependedOn[id] {
			root = id
			rootCount++
		}
	}
	switch rootCount {
	case 1:
		// exactly one root, as required
	case 0:
		return Dag{}, xerrors.Errorf("job dag: no root found (every job has a dependent)")
	default:
		return Dag{}, xerrors.Errorf("job dag: %d candidate roots found, want exactly 1", rootCount)
	}

	return Dag{defs: defs, root: root}, nil
}

func extractCycle(err error) []uuid.UUID {
	unordered, ok := err.(topo.Unorderable)
	if !ok || len(unordered) == 0 {
		return nil
	}
	cycle := make([]uuid.UUID, 0, len(unordered[0]))
	for _, n := range unordered[0] {
		if in, ok := n.(idNode); ok {
			cycle = append(cycle, in.job)
		}
	}
	return cycle
}

var _ graph.Node = idNode{}

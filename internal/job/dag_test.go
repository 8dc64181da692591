package job

import (
	"testing"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/pkgmodel"
)

func mustTree(t *testing.T, packages []pkgmodel.Package, root string) pkgmodel.Tree {
	t.Helper()
	tree, err := pkgmodel.NewTree(packages, root)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func TestBuildLinearChain(t *testing.T) {
	// a -> b -> c (a depends on b, b depends on c)
	packages := []pkgmodel.Package{
		{Name: "c", Version: "1"},
		{Name: "b", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"c"}}},
		{Name: "a", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"b"}}},
	}
	tree := mustTree(t, packages, "a")

	dag, err := Build(tree, []pkgmodel.PhaseName{"build"}, "img")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byName := defsByName(dag)
	aDef := byName["a"]
	bDef := byName["b"]
	cDef := byName["c"]

	if !aDef.DependsOn(bDef.Job.UUID) {
		t.Error("a should depend on b")
	}
	if !bDef.DependsOn(cDef.Job.UUID) {
		t.Error("b should depend on c")
	}
	if len(cDef.Dependencies) != 0 {
		t.Error("c should have no dependencies")
	}
	if dag.Root() != aDef.Job.UUID {
		t.Errorf("root = %s, want a's uuid %s", dag.Root(), aDef.Job.UUID)
	}
}

func TestBuildDiamond(t *testing.T) {
	// a -> {b, c} -> d
	packages := []pkgmodel.Package{
		{Name: "d", Version: "1"},
		{Name: "b", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"d"}}},
		{Name: "c", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"d"}}},
		{Name: "a", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"b", "c"}}},
	}
	tree := mustTree(t, packages, "a")

	dag, err := Build(tree, []pkgmodel.PhaseName{"build"}, "img")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	byName := defsByName(dag)
	if dag.Root() != byName["a"].Job.UUID {
		t.Error("expected a to be root")
	}
	if len(byName["a"].Dependencies) != 2 {
		t.Errorf("a should have 2 dependencies, got %d", len(byName["a"].Dependencies))
	}
	if len(byName["d"].Dependencies) != 0 {
		t.Error("d should have no dependencies")
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	packages := []pkgmodel.Package{
		{Name: "a", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"b"}}},
		{Name: "b", Version: "1", Dependencies: pkgmodel.Dependencies{Runtime: []string{"a"}}},
	}
	tree := mustTree(t, packages, "a")

	_, err := Build(tree, []pkgmodel.PhaseName{"build"}, "img")
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	var cycleErr *berrors.CycleInDag
	if !asCycleInDag(err, &cycleErr) {
		t.Fatalf("expected *berrors.CycleInDag, got %T: %v", err, err)
	}
}

func defsByName(dag Dag) map[string]JobDefinition {
	out := make(map[string]JobDefinition)
	for _, def := range dag.Definitions() {
		out[def.Job.Package.Name] = def
	}
	return out
}

func asCycleInDag(err error, target **berrors.CycleInDag) bool {
	ce, ok := err.(*berrors.CycleInDag)
	if !ok {
		return false
	}
	*target = ce
	return true
}

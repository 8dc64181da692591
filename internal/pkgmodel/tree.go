package pkgmodel

import "golang.org/x/xerrors"

// Tree is the PackageTree of spec §3: a rooted DAG of Package nodes,
// already resolved to one version per name, created by the external
// package repository loader and immutable thereafter. Two packages may
// share a dependency (diamond shapes are expected, not an error).
type Tree struct {
	byName map[string]Package
	root   string
}

// NewTree builds a Tree from a flat set of resolved packages and the name
// of the root package for this submit (the package the user asked to
// build; everything else is pulled in transitively via dependencies).
func NewTree(packages []Package, root string) (Tree, error) {
	byName := make(map[string]Package, len(packages))
	for _, p := range packages {
		byName[p.Name] = p
	}
	if _, ok := byName[root]; !ok {
		return Tree{}, xerrors.Errorf("root package %q not present in package set", root)
	}
	return Tree{byName: byName, root: root}, nil
}

// Root returns the root package of this tree.
func (t Tree) Root() Package { return t.byName[t.root] }

// Lookup returns the package with the given name, if present.
func (t Tree) Lookup(name string) (Package, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Packages returns every package in the tree, in unspecified order (spec
// §4.4: "Iteration order is unspecified").
func (t Tree) Packages() []Package {
	out := make([]Package, 0, len(t.byName))
	for _, p := range t.byName {
		out = append(out, p)
	}
	return out
}

// Dependents returns every package in the tree that directly depends on
// name within the given dependency categories (used by `what-depends`). If
// kinds is empty, all categories are considered.
func (t Tree) Dependents(name string, kinds []DependencyKind) []Package {
	if len(kinds) == 0 {
		kinds = AllDependencyKinds
	}
	var out []Package
	for _, p := range t.byName {
		for _, kind := range kinds {
			for _, dep := range p.Dependencies.Of(kind) {
				if dep == name {
					out = append(out, p)
					goto next
				}
			}
		}
	next:
	}
	return out
}

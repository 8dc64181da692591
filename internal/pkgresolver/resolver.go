// Package pkgresolver defines the interface the orchestrator uses to
// obtain a package.Tree, and a default file-system backed implementation
// suitable for local development. The real package repository loader and version resolver
// (spec §1) is an external collaborator; this package exists only so the
// rest of the module has something concrete to build and test against.
package pkgresolver

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/distr1/butido/internal/pkgmodel"
)

// Resolver supplies a package.Tree for a named root package, optionally
// pinned to a version. Implementations may hit a network service, a git
// checkout, or (as here) flat manifest files; the orchestrator does not
// care which.
type Resolver interface {
	Resolve(ctx context.Context, name, version string) (pkgmodel.Tree, error)
}

// manifest is the on-disk shape of one package's YAML manifest. Distri
// itself stores the equivalent data in a protoc-generated textproto
// message (pb.Build); reproducing that here would require running protoc,
// which this repository does not do, so manifests are YAML instead (see
// DESIGN.md).
type manifest struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Source  struct {
		URL  string `yaml:"url"`
		Hash struct {
			Type  string `yaml:"type"`
			Value string `yaml:"value"`
		} `yaml:"hash"`
	} `yaml:"source"`
	Dependencies struct {
		System        []string `yaml:"system"`
		SystemRuntime []string `yaml:"system_runtime"`
		Build         []string `yaml:"build"`
		Runtime       []string `yaml:"runtime"`
	} `yaml:"dependencies"`
	Phases map[string][]string `yaml:"phases"`
}

func (m manifest) toPackage() pkgmodel.Package {
	phases := make(map[pkgmodel.PhaseName][]string, len(m.Phases))
	for name, cmds := range m.Phases {
		phases[pkgmodel.PhaseName(name)] = cmds
	}
	return pkgmodel.Package{
		Name:    m.Name,
		Version: m.Version,
		Source: pkgmodel.Source{
			URL: m.Source.URL,
			Hash: pkgmodel.Hash{
				Type:  pkgmodel.HashType(m.Source.Hash.Type),
				Value: m.Source.Hash.Value,
			},
		},
		Dependencies: pkgmodel.Dependencies{
			System:        m.Dependencies.System,
			SystemRuntime: m.Dependencies.SystemRuntime,
			Build:         m.Dependencies.Build,
			Runtime:       m.Dependencies.Runtime,
		},
		Phases: phases,
	}
}

// FileResolver reads one `<root>/<pkg>.yaml` manifest per package out of a
// directory, transitively, starting from the requested root package.
type FileResolver struct {
	Dir string
}

// Resolve implements Resolver.
func (r FileResolver) Resolve(ctx context.Context, name, version string) (pkgmodel.Tree, error) {
	seen := make(map[string]pkgmodel.Package)
	if err := r.load(ctx, name, seen); err != nil {
		return pkgmodel.Tree{}, err
	}
	root, ok := seen[name]
	if !ok {
		return pkgmodel.Tree{}, xerrors.Errorf("package %q not found in %s", name, r.Dir)
	}
	if version != "" && root.Version != version {
		return pkgmodel.Tree{}, xerrors.Errorf("package %q: have version %q, want %q", name, root.Version, version)
	}
	packages := make([]pkgmodel.Package, 0, len(seen))
	for _, p := range seen {
		packages = append(packages, p)
	}
	return pkgmodel.NewTree(packages, name)
}

func (r FileResolver) load(ctx context.Context, name string, seen map[string]pkgmodel.Package) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := seen[name]; ok {
		return nil // already loaded, possibly a diamond dependency
	}
	path := filepath.Join(r.Dir, name+".yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("reading manifest %s: %w", path, err)
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return xerrors.Errorf("parsing manifest %s: %w", path, err)
	}
	pkg := m.toPackage()
	seen[name] = pkg // mark before recursing, so cycles terminate instead of looping
	for _, dep := range pkg.Dependencies.All() {
		if err := r.load(ctx, dep, seen); err != nil {
			return err
		}
	}
	return nil
}

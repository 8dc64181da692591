// Package pkgmodel defines the package dependency data supplied by the
// external package repository loader (spec §1: out of scope, specified
// only at its interface). The orchestrator consumes a PackageTree and
// never constructs one itself.
package pkgmodel

import "fmt"

// DependencyKind names one of the four dependency categories a Package can
// list. A job depends on another iff the other job's package is named in
// any of these four categories of its own package (spec §3, JobDefinition).
type DependencyKind string

const (
	System        DependencyKind = "system"
	SystemRuntime DependencyKind = "system-runtime"
	Build         DependencyKind = "build"
	Runtime       DependencyKind = "runtime"
)

// AllDependencyKinds lists every DependencyKind, in the order `what-depends
// -t` accepts and defaults to (original cli.rs: IDENT_DEPENDENCY_TYPE_*).
var AllDependencyKinds = []DependencyKind{System, SystemRuntime, Build, Runtime}

// Dependencies groups a package's dependency names by category. Each slice
// holds package names (not versions); resolution against a concrete
// PackageTree node happens when the JobDag is built.
type Dependencies struct {
	System        []string
	SystemRuntime []string
	Build         []string
	Runtime       []string
}

// All returns the union of every dependency category, in category order.
func (d Dependencies) All() []string {
	all := make([]string, 0, len(d.System)+len(d.SystemRuntime)+len(d.Build)+len(d.Runtime))
	all = append(all, d.System...)
	all = append(all, d.SystemRuntime...)
	all = append(all, d.Build...)
	all = append(all, d.Runtime...)
	return all
}

// Of returns the slice for a given DependencyKind, or nil for an unknown
// kind.
func (d Dependencies) Of(kind DependencyKind) []string {
	switch kind {
	case System:
		return d.System
	case SystemRuntime:
		return d.SystemRuntime
	case Build:
		return d.Build
	case Runtime:
		return d.Runtime
	default:
		return nil
	}
}

// HashType names the digest algorithm used to verify a fetched source
// tarball.
type HashType string

const (
	SHA256 HashType = "sha256"
	SHA512 HashType = "sha512"
)

// Hash pins a Source download to a content digest.
type Hash struct {
	Type  HashType
	Value string
}

// Source describes where a package's upstream sources can be fetched, and
// how to verify them once fetched. The SourceCache resolves this into a
// local tarball path, keyed by Hash.Value (the "package fingerprint" of
// spec §1).
type Source struct {
	URL  string
	Hash Hash
}

// Fingerprint is the cache key a SourceCache uses to address this source's
// cached tarball.
func (s Source) Fingerprint() string {
	return fmt.Sprintf("%s:%s", s.Type(), s.Hash.Value)
}

// Type returns the hash algorithm name, defaulting to sha256 when unset so
// that a zero-value Hash still produces a stable fingerprint.
func (s Source) Type() HashType {
	if s.Hash.Type == "" {
		return SHA256
	}
	return s.Hash.Type
}

// Package is one node of a PackageTree: a named, versioned build unit with
// its source location, its dependencies by category, and its ordered build
// phases (spec §3).
type Package struct {
	Name    string
	Version string

	Source       Source
	Dependencies Dependencies

	// Phases maps a PhaseName to the shell commands that phase runs, in
	// the order the orchestrator's Configuration-wide phase list names
	// them. A package need not implement every phase the submit runs;
	// missing phases are skipped when the job's script is rendered.
	Phases map[PhaseName][]string
}

// FullName is the (name, version) identity string used in logs and CLI
// output (spec §3: "Identity: (name, version) unique within one
// repository").
func (p Package) FullName() string {
	return p.Name + "-" + p.Version
}

// String implements fmt.Stringer for log output.
func (p Package) String() string {
	return p.FullName()
}

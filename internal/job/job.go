// Package job defines the Job, JobDefinition, JobDag and Artifact types
// (spec §3, §4.4) and the construction of a JobDag from a resolved
// package.Tree. Grounded on the teacher's internal/batch/batch.go, which
// builds an equivalent gonum graph from package dependency declarations
// and topologically validates it before scheduling; this package keeps
// that construction but changes the node payload from "a distri package
// build" to "a Job bound to one image and phase list" and changes
// identity from package name to a fresh uuid per spec §3.
package job

import (
	"github.com/google/uuid"

	"github.com/distr1/butido/internal/pkgmodel"
)

// Job is the unit of container execution for one package's build under
// one image and phase list (spec §3, GLOSSARY).
type Job struct {
	UUID    uuid.UUID
	Package pkgmodel.Package
	Image   pkgmodel.ImageName
	Phases  []pkgmodel.PhaseName
}

// JobDefinition pairs a Job with the set of job uuids it depends on
// (spec §3). Dependencies is a set, represented as a map to nil struct{}
// values for O(1) membership checks in JobTask's collect phase.
type JobDefinition struct {
	Job          Job
	Dependencies map[uuid.UUID]struct{}
}

// DependsOn reports whether this job definition depends on the given
// uuid.
func (d JobDefinition) DependsOn(id uuid.UUID) bool {
	_, ok := d.Dependencies[id]
	return ok
}

// Artifact is a path in the staging store produced by exactly one job
// (spec §3, GLOSSARY). Never mutated once created.
type Artifact struct {
	Path             string
	ProducingJobUUID uuid.UUID
}

// ResourceKind discriminates the variants of JobResource.
type ResourceKind int

const (
	// ResourceEnvironment is a literal environment variable to set in the
	// container (spec §4.1 step 1).
	ResourceEnvironment ResourceKind = iota
	// ResourceArtifact is a dependency artifact resolved from an upstream
	// job, also surfaced to the container as an environment variable
	// pointing at its staged path (spec §4.1 step 1).
	ResourceArtifact
)

// JobResource is one input a RunnableJob's environment is assembled from:
// either a literal key/value pair, or a reference to an upstream
// Artifact. Endpoint.RunJob filters these into a flat environment list
// (original endpoint/configured.rs: Environment vs Artifact resources).
type JobResource struct {
	Kind ResourceKind

	Key   string // ResourceEnvironment
	Value string // ResourceEnvironment

	Artifact Artifact // ResourceArtifact
}

// RunnableJob is a Job bound to a rendered script and a concrete list of
// resources, ready to hand to Endpoint.RunJob. Built by JobTask's "build
// phase" (spec §4.5 step 4) from the job, the accumulated upstream
// artifacts, and the package's phase scripts.
type RunnableJob struct {
	Job       Job
	Script    string
	Resources []JobResource
}

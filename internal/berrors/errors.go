// Package berrors defines the error taxonomy shared across the
// orchestrator (spec §7). Each type carries the structured fields the
// spec names so that callers can type-switch on them (CLI exit-code
// selection, test assertions) instead of matching on message text.
// Grounded on the teacher's use of golang.org/x/xerrors for %w-wrapping
// throughout internal/batch and cmd/distri; these types slot into that
// same chain via Unwrap.
package berrors

import (
	"fmt"

	"github.com/google/uuid"
)

// ConfigInvalid reports a Configuration that failed validation before any
// scheduling began (CLI exit code 2).
type ConfigInvalid struct {
	Reason string
	Err    error
}

func (e *ConfigInvalid) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}
func (e *ConfigInvalid) Unwrap() error { return e.Err }

// EndpointIncompatible reports that an endpoint's reported version, API
// version, or image set does not satisfy its EndpointDescriptor.
type EndpointIncompatible struct {
	Endpoint string
	Reason   string
}

func (e *EndpointIncompatible) Error() string {
	return fmt.Sprintf("endpoint %s incompatible: %s", e.Endpoint, e.Reason)
}

// EndpointUnreachable reports a transport-level failure talking to an
// endpoint (connection refused, timeout, TLS failure, ...).
type EndpointUnreachable struct {
	Endpoint string
	Err      error
}

func (e *EndpointUnreachable) Error() string {
	return fmt.Sprintf("endpoint %s unreachable: %v", e.Endpoint, e.Err)
}
func (e *EndpointUnreachable) Unwrap() error { return e.Err }

// ImageMissing reports that a required image is absent from an endpoint.
type ImageMissing struct {
	Endpoint string
	Image    string
}

func (e *ImageMissing) Error() string {
	return fmt.Sprintf("image %s missing on endpoint %s", e.Image, e.Endpoint)
}

// JobExecFailed reports a non-zero container exit. LogTail carries the
// last portion of captured output for operator diagnosis without needing
// the full persisted log.
type JobExecFailed struct {
	JobUUID uuid.UUID
	Exit    int
	LogTail string
}

func (e *JobExecFailed) Error() string {
	return fmt.Sprintf("job %s exited %d", e.JobUUID, e.Exit)
}

// ArtifactStageFailed reports a failure copying a job's output directory
// into the staging store.
type ArtifactStageFailed struct {
	JobUUID uuid.UUID
	Err     error
}

func (e *ArtifactStageFailed) Error() string {
	return fmt.Sprintf("staging artifacts for job %s: %v", e.JobUUID, e.Err)
}
func (e *ArtifactStageFailed) Unwrap() error { return e.Err }

// DbWriteFailed reports a failure persisting a JobRecord.
type DbWriteFailed struct {
	JobUUID uuid.UUID
	Err     error
}

func (e *DbWriteFailed) Error() string {
	return fmt.Sprintf("persisting job %s: %v", e.JobUUID, e.Err)
}
func (e *DbWriteFailed) Unwrap() error { return e.Err }

// OrphanedDependencies reports that a JobTask's upstream channel closed
// before every dependency uuid was covered by a received artifact map,
// and no error explains the gap.
type OrphanedDependencies struct {
	JobUUID uuid.UUID
	Missing []uuid.UUID
}

func (e *OrphanedDependencies) Error() string {
	return fmt.Sprintf("job %s: %d dependencies never reported in (channel closed early)", e.JobUUID, len(e.Missing))
}

// NoRootResult reports that the orchestrator's root sink channel closed
// without ever delivering a JobResult.
type NoRootResult struct{}

func (e *NoRootResult) Error() string { return "orchestrator: root task produced no result" }

// CycleInDag reports that JobDag construction found the dependency graph
// is not acyclic.
type CycleInDag struct {
	Cycle []uuid.UUID
}

func (e *CycleInDag) Error() string {
	return fmt.Sprintf("job dag: cycle of length %d detected", len(e.Cycle))
}

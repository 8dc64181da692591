package orchestrator

import "github.com/google/uuid"

// State names one of a JobTask's state-transition messages (spec §4.5
// "Progress bar"). The multi-bar rendering itself is out of scope (spec
// §1: "progress-bar rendering" is an external collaborator); Reporter is
// the seam a renderer attaches to.
type State string

const (
	StateWaiting    State = "Waiting"
	StatePreparing  State = "Preparing"
	StateScheduling State = "Scheduling"
	StateRunning    State = "Running"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// Reporter receives a state transition for one job. Implementations may
// drive a terminal multi-bar, structured log, or nothing at all.
type Reporter interface {
	Report(jobUUID uuid.UUID, state State, detail string)
}

// NoopReporter discards every transition.
type NoopReporter struct{}

// Report implements Reporter.
func (NoopReporter) Report(uuid.UUID, State, string) {}

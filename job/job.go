// Package job defines the image-generation job and its lifecycle.
package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is a job lifecycle state
type State string

const (
	// StatePolled means the job was received from the server but not yet claimed.
	StatePolled State = "polled"
	// StateClaimed means this worker has committed to execute the job.
	StateClaimed State = "claimed"
	// StateDispatched means the job has been sent to the local backend.
	StateDispatched State = "dispatched"
	// StateCompleted and StateFailed are terminal; they are reported to the
	// server exactly once and the job is discarded afterwards.
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var validTransitions = map[State][]State{
	StatePolled:     {StateClaimed},
	StateClaimed:    {StateDispatched, StateFailed},
	StateDispatched: {StateCompleted, StateFailed},
}

// Job is a single image-generation request. Params are an opaque payload
// passed through to the backend without structural interpretation.
type Job struct {
	ID      string          `json:"id"`
	Service string          `json:"service"`
	Params  json.RawMessage `json:"params"`

	ClaimedAt time.Time `json:"-"`

	state State
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	if j.state == "" {
		return StatePolled
	}
	return j.state
}

// Transition moves the job to a new lifecycle state, rejecting moves the
// state machine does not allow.
func (j *Job) Transition(to State) error {
	from := j.State()
	for _, next := range validTransitions[from] {
		if next == to {
			j.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", from, to)
}

// Terminal reports whether the job has reached a terminal state.
func (j *Job) Terminal() bool {
	s := j.State()
	return s == StateCompleted || s == StateFailed
}

// Result is a successful generation result.
type Result struct {
	// Image is the base64-encoded image returned by the backend.
	Image string `json:"image"`
	Seed  int64  `json:"seed"`
	// InferenceTime is the generation wall time in seconds.
	InferenceTime float64 `json:"inference_time,omitempty"`
}

// Outcome is the terminal report sent back to the dispatch server.
type Outcome struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Success builds a completed outcome.
func Success(r *Result) Outcome {
	return Outcome{Result: r}
}

// Failure builds a failed outcome with a human-readable reason.
func Failure(reason string) Outcome {
	return Outcome{Error: reason}
}

// Failed reports whether the outcome is a failure report.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

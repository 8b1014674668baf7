package models

import "fmt"

// JobState tracks one document through the pipeline.
type JobState string

const (
	StatePending      JobState = "pending"
	StateClassifying  JobState = "classifying"
	StateSkipped      JobState = "skipped"
	StateWouldProcess JobState = "would_process"
	StateInvoking     JobState = "invoking"
	StateRetrying     JobState = "retrying"
	StateCommitted    JobState = "committed"
	StateFailed       JobState = "failed"
)

var transitions = map[JobState][]JobState{
	StatePending:     {StateClassifying, StateFailed},
	StateClassifying: {StateSkipped, StateWouldProcess, StateInvoking, StateFailed},
	StateInvoking:    {StateCommitted, StateRetrying, StateFailed},
	StateRetrying:    {StateCommitted, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Active reports whether a job in this state occupies a worker slot.
func (s JobState) Active() bool {
	return s == StateClassifying || s == StateInvoking || s == StateRetrying
}

// Job is the unit of work for one Document. It is owned by a single worker
// for its whole lifetime, so it carries no locking.
type Job struct {
	Document Document
	State    JobState
	Attempts int
	history  []JobState
}

// NewJob returns a job in the Pending state.
func NewJob(doc Document) *Job {
	return &Job{Document: doc, State: StatePending, history: []JobState{StatePending}}
}

// Advance moves the job to next, rejecting any edge not in the state machine.
// Since every edge points forward, a state can never be revisited.
func (j *Job) Advance(next JobState) error {
	for _, allowed := range transitions[j.State] {
		if allowed == next {
			j.State = next
			j.history = append(j.history, next)
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s for %s", j.State, next, j.Document.Path)
}

// History returns the states visited so far, in order.
func (j *Job) History() []JobState {
	return append([]JobState(nil), j.history...)
}

package jobstate

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a job.
type State string

const (
	Pending    State = "pending"
	Scripting  State = "scripting"
	TTS        State = "tts"
	Rendering  State = "rendering"
	Uploading  State = "uploading"
	Publishing State = "publishing"
	Done       State = "done"
	Failed     State = "failed"
)

var allStates = []State{Pending, Scripting, TTS, Rendering, Uploading, Publishing, Done, Failed}

// pipelineOrder lists the states that perform work, in execution order.
var pipelineOrder = []State{Scripting, TTS, Rendering, Uploading, Publishing}

var transitions = map[State][]State{
	Pending:    {Scripting, Failed},
	Scripting:  {TTS, Failed},
	TTS:        {Rendering, Failed},
	Rendering:  {Uploading, Failed},
	Uploading:  {Publishing, Failed},
	Publishing: {Done, Failed},
	Done:       {},
	Failed:     {Pending, Scripting, TTS, Rendering, Uploading, Publishing},
}

// ErrInvalidTransition matches every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// InvalidTransitionError identifies a rejected state change.
type InvalidTransitionError struct {
	JobID string
	From  State
	To    State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// All returns every defined state.
func All() []State {
	return append([]State(nil), allStates...)
}

// PipelineOrder returns the working stages in execution order.
func PipelineOrder() []State {
	return append([]State(nil), pipelineOrder...)
}

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsStage reports whether s is one of the working stages.
func (s State) IsStage() bool {
	return stageIndex(s) >= 0
}

// IsTerminal reports whether s stops forward progress.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed
}

func (s State) String() string { return string(s) }

// Parse converts raw into a State, rejecting unknown values.
func Parse(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job state %q", raw)
	}
	return s, nil
}

// CanTransition reports whether from -> to appears in the transition table.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Check returns an InvalidTransitionError when from -> to is not allowed.
func Check(jobID string, from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return &InvalidTransitionError{JobID: jobID, From: from, To: to}
}

// Allowed returns the states reachable from s.
func Allowed(s State) []State {
	return append([]State(nil), transitions[s]...)
}

// Next returns the stage after s in pipeline order. It reports false when s
// is the final stage or is not a stage at all.
func Next(s State) (State, bool) {
	idx := stageIndex(s)
	if idx < 0 || idx+1 >= len(pipelineOrder) {
		return "", false
	}
	return pipelineOrder[idx+1], true
}

// ResumeState returns the stage a failed job restarts at: Scripting when
// nothing completed, otherwise the stage after lastGood.
//
// Publishing has no successor. The executor only stores it as last_good
// together with done, so a failed job carrying it comes from an edited
// database; it re-runs publishing alone.
func ResumeState(lastGood State) State {
	if lastGood == "" {
		return Scripting
	}
	if next, ok := Next(lastGood); ok {
		return next
	}
	if lastGood == Publishing {
		return Publishing
	}
	return Scripting
}

// Index returns the pipeline position of s, or -1 for non-stage states.
func Index(s State) int {
	return stageIndex(s)
}

// AtOrBefore reports whether a precedes or equals b in lifecycle order.
// Pending sorts first and Done last; Failed has no position.
func AtOrBefore(a, b State) bool {
	ra, okA := rank(a)
	rb, okB := rank(b)
	return okA && okB && ra <= rb
}

func rank(s State) (int, bool) {
	switch s {
	case Pending:
		return -1, true
	case Done:
		return len(pipelineOrder), true
	}
	idx := stageIndex(s)
	return idx, idx >= 0
}

func stageIndex(s State) int {
	for i, stage := range pipelineOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

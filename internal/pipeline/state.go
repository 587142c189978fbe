package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/sells-group/lead-enricher/internal/stage"
)

// State is a step of a single lead-processing run.
type State string

const (
	StateStart       State = "start"
	StateResearching State = "researching"
	StateAnalyzing   State = "analyzing"
	StateWriting     State = "writing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateStart:       {StateResearching, StateFailed},
	StateResearching: {StateAnalyzing, StateFailed},
	StateAnalyzing:   {StateWriting, StateFailed},
	StateWriting:     {StateCompleted, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Stage maps a working state to the stage it executes.
func (s State) Stage() (stage.Name, bool) {
	switch s {
	case StateResearching:
		return stage.Research, true
	case StateAnalyzing:
		return stage.Analysis, true
	case StateWriting:
		return stage.Writing, true
	default:
		return "", false
	}
}

// Transition is one recorded state change.
type Transition struct {
	ProfileURL string
	From       State
	To         State
	At         time.Time
	// Err is set when To is StateFailed.
	Err error
}

// Observer receives every transition of every run.
type Observer func(Transition)

// StageError is the Failed(stage, cause) outcome of a run.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

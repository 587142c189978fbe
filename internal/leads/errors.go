package leads

import (
	"errors"
	"fmt"

	"github.com/sells-group/lead-enricher/internal/capability"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/stage"
)

// InvalidInputError rejects a lead before any store or stage access.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// DuplicateLeadError reports that a record for the profile already exists.
// Race is set when the pre-check passed but the insert lost to a
// concurrent run.
type DuplicateLeadError struct {
	ProfileURL string
	Race       bool
}

func (e *DuplicateLeadError) Error() string {
	return fmt.Sprintf("lead already processed: %s", e.ProfileURL)
}

// PipelineError wraps a failed pipeline run with the state it failed in.
type PipelineError struct {
	Stage pipeline.State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Code is a stable machine-readable reason for the failure.
func (e *PipelineError) Code() string {
	if kind, ok := capability.KindOf(e.Err); ok {
		return string(kind)
	}
	var ve *stage.ValidationError
	if errors.As(e.Err, &ve) {
		return "validation"
	}
	return "pipeline_error"
}

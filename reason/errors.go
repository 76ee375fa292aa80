package reason

import (
	"errors"
	"fmt"
)

// ReasoningError wraps a model call failure or an unparsable response.
// It is always downgraded into Answer.Error, never returned to callers.
type ReasoningError struct {
	Stage string // "completion" or "parse"
	Err   error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("reasoning failed at %s: %v", e.Stage, e.Err)
}

func (e *ReasoningError) Unwrap() error { return e.Err }

// IsReasoning reports whether err is a ReasoningError.
func IsReasoning(err error) bool {
	var re *ReasoningError
	return errors.As(err, &re)
}

package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports identifiers that are not members of their
// canonical set. It aborts only the offending record during indexing;
// callers decide whether to continue the batch.
type ValidationError struct {
	// Context describes where the bad reference came from,
	// e.g. "chat record C123".
	Context string

	// Unknown maps field name ("services", "apis", ...) to the ids that
	// failed membership, in input order.
	Unknown map[string][]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, field := range []string{"services", "components", "apis", "docs"} {
		if ids := e.Unknown[field]; len(ids) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(ids, ", ")))
		}
	}
	return fmt.Sprintf("unknown canonical ids (%s): %s", e.Context, strings.Join(parts, "; "))
}

func (e *ValidationError) add(field string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if e.Unknown == nil {
		e.Unknown = make(map[string][]string)
	}
	e.Unknown[field] = ids
}

func (e *ValidationError) empty() bool {
	return len(e.Unknown) == 0
}

// IsValidation reports whether err is a canonical-id validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

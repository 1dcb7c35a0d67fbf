package orchestrator

import "github.com/discord-agent/orchestrator/pkg/models"

// GraphError wraps an unrecoverable Run failure with the taxonomy kind
// delivered to observers via OnError.
type GraphError struct {
	Kind  models.ErrorKind
	Cause error
}

func (e *GraphError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *GraphError) Unwrap() error { return e.Cause }

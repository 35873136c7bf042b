package host

import "fmt"

// UnknownAgentError reports an invocation naming an unregistered handle.
// Unlike stale dispatch handles this is fatal: an invoke for an agent that
// was never registered is a protocol violation.
type UnknownAgentError struct {
	Handle int
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("no agent registered under handle %d", e.Handle)
}

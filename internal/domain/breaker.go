package domain

// CircuitState enumerates the three states of a route's circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitSnapshot is the point-in-time view of a breaker's state, as
// returned by the breaker registry's Health method.
type CircuitSnapshot struct {
	ServiceID   string       `json:"service_id"`
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	Successes   int          `json:"successes"`
	LastFailure int64        `json:"last_failure_unix_ms,omitempty"`
	NextAttempt int64        `json:"next_attempt_unix_ms,omitempty"`
}

// FailureEvent is published on the Event Bus whenever a breaker records a
// failure or transitions state.
type FailureEvent struct {
	ServiceID string       `json:"service_id"`
	State     CircuitState `json:"state"`
	Kind      ErrorKind    `json:"error_kind,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

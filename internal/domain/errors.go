package domain

// ErrorKind classifies why an upstream call failed, per §7's error kind
// table. It's attached to FailureEvent and used as the
// circuit_breaker_failures_total error_type label.
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindStatus5xx ErrorKind = "status_5xx"
)

package domain

// Outcome is how a node's work ended, as reported to telemetry.
type Outcome string

const (
	// OutcomeBuilt means the node's work ran and succeeded.
	OutcomeBuilt Outcome = "built"
	// OutcomeFailed means the node's work ran and failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the node was dequeued after an abort and never ran.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFresh means the node was up to date and never queued.
	OutcomeFresh Outcome = "fresh"
)

// LogLevel is the severity of a message attached to a telemetry vertex.
type LogLevel int

const (
	// LogLevelDebug is debug verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo is informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn is warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError is error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Package audit records one structured event per DevScript pipeline step.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventConversion is logged when DevScript source has been converted.
	EventConversion EventType = "conversion"

	// EventDependencyInstall is logged after missing packages were installed.
	EventDependencyInstall EventType = "dependency_install"

	// EventExecution is logged when generated code finishes running.
	EventExecution EventType = "execution"

	// EventExplain is logged when an explanation is requested.
	EventExplain EventType = "explain"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents one audit event.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	RunID      string                 `json:"run_id"`
	Variant    string                 `json:"variant"`
	SourceFile string                 `json:"source_file,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Result     string                 `json:"result"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	ExitCode   *int                   `json:"exit_code,omitempty"`
	ErrorMsg   string                 `json:"error,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Logger handles audit event logging for a single CLI invocation.
type Logger struct {
	runID   string
	variant string
	logger  zerolog.Logger
}

// NewLogger creates an audit logger with a fresh run ID. variant names the
// binary that emits the events.
func NewLogger(variant string, logger zerolog.Logger) *Logger {
	runID := uuid.New().String()
	return &Logger{
		runID:   runID,
		variant: variant,
		logger:  logger.With().Str("component", "audit").Str("run_id", runID).Logger(),
	}
}

// RunID returns the identifier shared by every event of this invocation.
func (l *Logger) RunID() string {
	return l.runID
}

// Log writes an audit event.
func (l *Logger) Log(event *Event) {
	event.Timestamp = time.Now()
	event.RunID = l.runID
	event.Variant = l.variant

	eventJSON, _ := json.Marshal(event)

	logEvent := l.logger.Info().
		Str("event_type", string(event.EventType)).
		Str("result", event.Result)

	if event.SourceFile != "" {
		logEvent = logEvent.Str("source_file", event.SourceFile)
	}
	if event.ErrorMsg != "" {
		logEvent = logEvent.Str("error", event.ErrorMsg)
	}

	logEvent.RawJSON("audit_event", eventJSON).Msg("Audit event")
}

// LogConversion logs a conversion attempt.
func (l *Logger) LogConversion(sourceFile, model string, duration time.Duration, tokens int, err error) {
	event := &Event{
		EventType:  EventConversion,
		SourceFile: sourceFile,
		Model:      model,
		DurationMs: duration.Milliseconds(),
		Result:     ResultSuccess,
	}
	if tokens > 0 {
		event.Details = map[string]interface{}{"tokens": tokens}
	}
	setError(event, err)

	l.Log(event)
}

// LogDependencyInstall logs an installation pass.
func (l *Logger) LogDependencyInstall(installed, failed []string, err error) {
	event := &Event{
		EventType: EventDependencyInstall,
		Result:    ResultSuccess,
		Details: map[string]interface{}{
			"installed": installed,
			"failed":    failed,
		},
	}
	if len(failed) > 0 {
		event.Result = ResultFailure
	}
	setError(event, err)

	l.Log(event)
}

// LogExecution logs a finished run of generated code.
func (l *Logger) LogExecution(sourceFile string, exitCode int, duration time.Duration, err error) {
	event := &Event{
		EventType:  EventExecution,
		SourceFile: sourceFile,
		DurationMs: duration.Milliseconds(),
		ExitCode:   &exitCode,
		Result:     ResultSuccess,
	}
	if exitCode != 0 {
		event.Result = ResultFailure
	}
	setError(event, err)

	l.Log(event)
}

// LogExplain logs an explanation request.
func (l *Logger) LogExplain(err error) {
	event := &Event{
		EventType: EventExplain,
		Result:    ResultSuccess,
	}
	setError(event, err)

	l.Log(event)
}

func setError(event *Event, err error) {
	if err != nil {
		event.Result = ResultFailure
		event.ErrorMsg = err.Error()
	}
}

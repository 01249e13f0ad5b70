package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // attribution pass aborted, retry advised
	ExitCommandError = 2 // command error (bad flags, database not openable)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// PassSummary is what one run invocation reports to the operator.
type PassSummary struct {
	Passes           int   `json:"passes"`
	Attempted        int64 `json:"attempted"`
	Attributed       int64 `json:"attributed"`
	Ignored          int64 `json:"ignored"`
	AlreadyHandled   int64 `json:"already_handled"`
	EventReports     int64 `json:"event_reports"`
	AggregateReports int64 `json:"aggregate_reports"`
	Drained          bool  `json:"drained"`
}

// OutputFormatter renders pass summaries as JSON or text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Summary writes the run outcome in the configured format.
func (f *OutputFormatter) Summary(s PassSummary) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(s)
	}
	fmt.Fprintf(f.Writer, "passes:            %d\n", s.Passes)
	fmt.Fprintf(f.Writer, "attempted:         %d\n", s.Attempted)
	fmt.Fprintf(f.Writer, "attributed:        %d\n", s.Attributed)
	fmt.Fprintf(f.Writer, "ignored:           %d\n", s.Ignored)
	fmt.Fprintf(f.Writer, "already handled:   %d\n", s.AlreadyHandled)
	fmt.Fprintf(f.Writer, "event reports:     %d\n", s.EventReports)
	fmt.Fprintf(f.Writer, "aggregate reports: %d\n", s.AggregateReports)
	fmt.Fprintf(f.Writer, "drained:           %t\n", s.Drained)
	return nil
}

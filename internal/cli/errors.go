package cli

import "fmt"

// CommandError provides structured error reporting for CLI commands.
type CommandError struct {
	Message    string
	Cause      error
	Suggestion string
	ExitCode   int
}

func (e CommandError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "command failed"
}

func (e CommandError) Unwrap() error { return e.Cause }

// ExitStatus returns the process exit code associated with the error.
func (e CommandError) ExitStatus() int {
	if e.ExitCode != 0 {
		return e.ExitCode
	}
	return 1
}

func wrapError(message string, cause error, suggestion string) error {
	msg := message
	if cause != nil && msg == "" {
		msg = cause.Error()
	}
	return CommandError{Message: msg, Cause: cause, Suggestion: suggestion}
}

// usageError marks bad arguments; exit code 2 like most CLIs.
func usageError(format string, args ...any) error {
	return CommandError{Message: fmt.Sprintf(format, args...), ExitCode: 2}
}

func formatSuggestion(hint string) string {
	return "hint: " + hint
}

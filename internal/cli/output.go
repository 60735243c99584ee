package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/orcado/internal/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected dataset or failed sync
	ExitCommandError = 2 // Bad arguments, configuration or unreadable file
)

// ExitError carries the exit code a command failed with.
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
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope written with --format json.
type Response struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error part of a JSON response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Details any    `json:"details,omitempty"`
}

// output writes command results as text or JSON.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, w io.Writer) *output {
	return &output{format: opts.Format, w: w}
}

func (o *output) json() bool { return o.format == "json" }

// success writes data in JSON mode, or calls text otherwise.
func (o *output) success(data any, text func(w io.Writer)) error {
	if o.json() {
		return o.encode(Response{Status: "ok", Data: data})
	}
	text(o.w)
	return nil
}

// failure reports err and returns it wrapped with code.
func (o *output) failure(code int, err error, details any) error {
	msg := core.MapError(err)
	if o.json() {
		if encErr := o.encode(Response{
			Status: "error",
			Error:  &ErrorBody{Code: msg.Code, Message: msg.Message, Action: msg.Action, Details: details},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(o.w, "Error %s: %s\n", msg.Code, msg.Message)
		if msg.Action != "" {
			fmt.Fprintf(o.w, "  %s\n", msg.Action)
		}
	}
	return WrapExitError(code, msg.Code, err)
}

func (o *output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

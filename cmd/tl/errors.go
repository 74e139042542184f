package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tracklog/tracklog/internal/deletions"
	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/ui"
)

// FatalError writes an error message to stderr and exits with code 1.
// Use it for failures that stop the command: bad input, missing project,
// storage errors.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	shutdown()
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
//
//	FatalErrorWithHint("no workflow catalog", "Run 'tl init' to create a tracklog project")
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	shutdown()
	os.Exit(1)
}

// WarnError writes a warning to stderr and returns. Use it for auxiliary
// features (notification routes, NATS) whose failure must not stop a
// mutation.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// jsonError is the --json error object.
type jsonError struct {
	Error  string      `json:"error"`
	Code   string      `json:"code"`
	Fields interface{} `json:"fields,omitempty"`
	Failed interface{} `json:"failed,omitempty"`
}

// failureJSON is one entry of a partial failure.
type failureJSON struct {
	ID      int64  `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// exitWithError reports err in the form matching --json and exits with
// code 1. Engine errors get their field or issue lists printed.
func exitWithError(err error) {
	if jsonOutput {
		outputJSONError(err)
	}

	var verr *engine.ValidationError
	var perr *engine.PartialFailureError
	var herr *deletions.HoursLoggedError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(os.Stderr, "Error: %s\n", engine.ErrValidationFailed)
		for _, fe := range verr.Errors {
			fmt.Fprintf(os.Stderr, "  %s %s\n", ui.RenderFail(ui.IconFail), fe.Error())
		}
	case errors.As(err, &perr):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, f := range perr.Failed {
			fmt.Fprintf(os.Stderr, "  %s %s: %s\n", ui.RenderFail(ui.IconFail), ui.RenderIssueRef(f.ID), f.Message())
		}
	case errors.As(err, &herr):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Hint: pass --todo destroy, --todo nullify or --todo reassign:<id>\n")
	case errors.Is(err, engine.ErrConcurrentModification):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Hint: reload the issue and retry\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	shutdown()
	os.Exit(1)
}

// outputJSONError writes err as a JSON object to stderr and exits with
// code 1.
//
//	{"error": "...", "code": "validation_failed", "fields": [...]}
func outputJSONError(err error) {
	obj := jsonError{Error: err.Error(), Code: engine.Reason(err)}
	var verr *engine.ValidationError
	var perr *engine.PartialFailureError
	switch {
	case errors.As(err, &verr):
		obj.Fields = verr.Errors
	case errors.As(err, &perr):
		obj.Code = "partial_failure"
		obj.Failed = failuresJSON(perr.Failed)
	case errors.Is(err, deletions.ErrHoursLogged):
		obj.Code = "hours_logged"
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(obj)
	shutdown()
	os.Exit(1)
}

func failuresJSON(failed []engine.Failure) []failureJSON {
	out := make([]failureJSON, len(failed))
	for i, f := range failed {
		out[i] = failureJSON{ID: f.ID, Reason: f.Reason, Message: f.Message()}
	}
	return out
}

package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitOK         = 0
	ExitStructural = 1
	ExitUsage      = 2
)

// ExitError carries the process exit code for an error
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExitError
	if errors.As(err, &existing) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
// Per-item failures never reach here; anything else aborted the command.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitStructural
}

// endpointArgs validates a single positional endpoint id
func endpointArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return exitError(ExitUsage, fmt.Errorf("%s requires exactly one SOURCE-ID argument, got %d", cmd.Name(), len(args)))
	}
	if _, err := parseEndpointID(args[0]); err != nil {
		return exitError(ExitUsage, err)
	}
	return nil
}

func parseEndpointID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid endpoint id %q: must be a positive integer (see 'aiomigrate endpoints')", s)
	}
	return id, nil
}

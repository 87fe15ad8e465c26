package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the command tree with args and returns the process exit code.
func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	code := 1
	var coded exitCodeError
	if errors.As(err, &coded) {
		code = coded.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return code
}

// exitCodeError carries a specific exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string { return e.err.Error() }

func (e exitCodeError) Unwrap() error { return e.err }

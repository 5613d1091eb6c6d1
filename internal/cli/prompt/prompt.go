// Package prompt asks the operator for confirmation and missing values.
// Every prompt refuses to run when stdin is not a terminal.
package prompt

import (
	"errors"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var (
	// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
	ErrAborted = errors.New("aborted")

	// ErrNotInteractive is returned when a prompt would read from a
	// non-terminal stdin.
	ErrNotInteractive = errors.New("stdin is not a terminal; pass the value as a flag")
)

// interactive is replaced in tests.
var interactive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, ErrAborted)
}

// wrapError converts promptui interrupt errors to ErrAborted.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) {
		return ErrAborted
	}
	return err
}

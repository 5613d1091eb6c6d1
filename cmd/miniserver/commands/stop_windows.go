//go:build windows

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// stopProcess terminates the server process on Windows.
// Force mode uses process.Kill(); graceful mode sends os.Interrupt.
func stopProcess(out io.Writer, process *os.Process, pid int, force bool) error {
	var err error
	if force {
		_, _ = fmt.Fprintf(out, "Killing process %d...\n", pid)
		err = process.Kill()
	} else {
		_, _ = fmt.Fprintf(out, "Sending interrupt to process %d...\n", pid)
		err = process.Signal(os.Interrupt)
	}

	if errors.Is(err, os.ErrProcessDone) {
		return errProcessDone
	}
	if err != nil {
		return fmt.Errorf("failed to stop process: %w", err)
	}
	return nil
}

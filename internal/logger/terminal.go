package logger

import (
	"io"
	"os"

	"golang.org/x/term"
)

// supportsColor reports whether w is an interactive terminal.
// NO_COLOR disables color regardless of the writer.
func supportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

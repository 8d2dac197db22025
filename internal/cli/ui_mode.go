package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// isTerminal reports whether the writer is an interactive terminal.
// Package variable so tests can force either mode.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// resolveUIMode maps the --ui flag to "live" or "plain". "auto" picks
// live only when stdout is a terminal.
func resolveUIMode(mode string, stdout io.Writer) (string, error) {
	switch mode {
	case "", "auto":
		if isTerminal(stdout) {
			return "live", nil
		}
		return "plain", nil
	case "live", "plain":
		return mode, nil
	default:
		return "", fmt.Errorf("unknown ui mode %q (want auto, live, or plain)", mode)
	}
}

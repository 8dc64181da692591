package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	butido "github.com/distr1/butido"
	"github.com/distr1/butido/internal/orchestrator"
)

// terminalReporter renders JobTask state transitions as plain log lines.
// A real multi-bar renderer is an external collaborator (spec §1); this
// is the minimal concrete Reporter the CLI wires in, upgrading to a
// carriage-return-based single line of status when stderr is a TTY the
// way teacher's own CLI commands probe isatty before deciding how
// verbose to be.
type terminalReporter struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

func newTerminalReporter(w io.Writer) *terminalReporter {
	tty := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	r := &terminalReporter{w: w, tty: tty}
	if tty {
		// The \r\x1b[K-redrawn status line left behind by Report has no
		// trailing newline; without this the shell prompt would print
		// glued onto it after the process exits.
		butido.RegisterAtExit(r.flush)
	}
	return r
}

func (r *terminalReporter) flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.w)
	return err
}

// Report implements orchestrator.Reporter.
func (r *terminalReporter) Report(jobUUID uuid.UUID, state orchestrator.State, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := "\n"
	if r.tty {
		prefix = "\r\x1b[K"
	}
	if detail == "" {
		fmt.Fprintf(r.w, "%s%s: %s", prefix, jobUUID, state)
		return
	}
	fmt.Fprintf(r.w, "%s%s: %s (%s)", prefix, jobUUID, state, detail)
}

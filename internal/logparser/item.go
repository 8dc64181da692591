// Package logparser turns the raw byte stream a build container writes to
// stdout into a sequence of LogItem values: either an opaque Line, or one
// of three sentinel directives a build script may emit to report
// structured progress (spec §4.8). Grounded on the teacher's line-oriented
// log handling in internal/batch/batch.go (status line redraw) and on the
// original Rust log grammar (src/log in original_source), which this
// package reproduces exactly.
package logparser

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Kind discriminates the variants of LogItem.
type Kind int

const (
	// KindLine is an ordinary, unparsed line of build output.
	KindLine Kind = iota
	// KindProgress reports a progress value (a u8, 0-255).
	KindProgress
	// KindPhase announces the build phase the script is now running.
	KindPhase
	// KindState reports the terminal outcome of the script: Ok or Err.
	KindState
)

// LogItem is the parsed form of one line of container stdout. Exactly one
// of its fields is meaningful, selected by Kind; this mirrors the Rust
// original's enum rather than using an interface, since every variant is
// plain data and call sites switch on Kind anyway.
type LogItem struct {
	Kind Kind

	Line     string // KindLine
	Progress uint8  // KindProgress, 0-255
	Phase    string // KindPhase

	StateOK     bool   // KindState
	StateDetail string // KindState
}

const (
	progressPrefix = "#BUTIDO:PROGRESS:"
	phasePrefix    = "#BUTIDO:PHASE:"
	stateOKPrefix  = "#BUTIDO:STATE:OK:"
	stateErrPrefix = "#BUTIDO:STATE:ERR:"
)

// Parse classifies a single line of container stdout (without its
// trailing newline). A line that looks like a sentinel but fails to parse
// (e.g. a non-numeric progress value) is returned as an error, not
// silently downgraded to KindLine: a malformed sentinel indicates a bug in
// the build script, not ordinary output that happens to start with "#".
func Parse(line string) (LogItem, error) {
	switch {
	case strings.HasPrefix(line, progressPrefix):
		raw := strings.TrimPrefix(line, progressPrefix)
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return LogItem{}, xerrors.Errorf("parsing progress %q: %w", raw, err)
		}
		return LogItem{Kind: KindProgress, Progress: uint8(n)}, nil

	case strings.HasPrefix(line, phasePrefix):
		return LogItem{Kind: KindPhase, Phase: strings.TrimPrefix(line, phasePrefix)}, nil

	case strings.HasPrefix(line, stateOKPrefix):
		return LogItem{Kind: KindState, StateOK: true, StateDetail: strings.TrimPrefix(line, stateOKPrefix)}, nil

	case strings.HasPrefix(line, stateErrPrefix):
		return LogItem{Kind: KindState, StateOK: false, StateDetail: strings.TrimPrefix(line, stateErrPrefix)}, nil

	default:
		return LogItem{Kind: KindLine, Line: line}, nil
	}
}

// String renders a LogItem back to the wire form Parse accepts, so that
// Parse(item.String()) round-trips for every Kind.
func (i LogItem) String() string {
	switch i.Kind {
	case KindProgress:
		return progressPrefix + strconv.FormatUint(uint64(i.Progress), 10)
	case KindPhase:
		return phasePrefix + i.Phase
	case KindState:
		if i.StateOK {
			return stateOKPrefix + i.StateDetail
		}
		return stateErrPrefix + i.StateDetail
	default:
		return i.Line
	}
}

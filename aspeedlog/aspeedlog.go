// Package aspeedlog provides the three named log channels spec.md §7
// requires ("guest error", "unimplemented", informational), each a plain
// *log.Logger with a distinct prefix. The teacher engine never reaches for
// a structured logging library anywhere in its ~300 files (component
// resets, audio chip register writes, snapshot save/restore all call
// log.Printf directly) so this module does the same instead of importing
// one.
package aspeedlog

import (
	"io"
	"log"
	"os"
)

// Channels groups the three log destinations a device model writes to.
type Channels struct {
	// GuestError logs guest-programming mistakes: misaligned segments,
	// out-of-window segments, illegal STOP, immutable-segment writes.
	// The operation is snapped or skipped; no fault reaches the guest.
	GuestError *log.Logger

	// Unimplemented logs reserved-register access, slave mode, and
	// unrecognized snoop opcodes.
	Unimplemented *log.Logger

	// Info is the channel for informational trace lines a board
	// integrator can filter on; neither controller in this module writes
	// to it.
	Info *log.Logger
}

// New builds a Channels writing to w with a component-specific prefix,
// e.g. New(os.Stderr, "aspeed-i2c[bus3]").
func New(w io.Writer, component string) *Channels {
	flags := log.LstdFlags
	return &Channels{
		GuestError:    log.New(w, component+" guest-error: ", flags),
		Unimplemented: log.New(w, component+" unimplemented: ", flags),
		Info:          log.New(w, component+" info: ", flags),
	}
}

// Default returns a Channels writing to os.Stderr, suitable for
// constructors that don't take an explicit logger.
func Default(component string) *Channels {
	return New(os.Stderr, component)
}

// Discard returns a Channels that drops everything, used by tests that
// don't want log noise but still want a non-nil Channels.
func Discard(component string) *Channels {
	return New(io.Discard, component)
}

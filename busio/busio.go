// Package busio defines the byte-level I²C and SPI collaborator
// interfaces spec.md §6 names, plus GPIO-like Line signals for chip-select
// and interrupt outputs.
//
// The emulated controllers in aspeedi2c and aspeedsmc talk to these
// interfaces, never to a concrete transport; PeriphI2CAdapter and
// PeriphSPIAdapter let anything already speaking periph.io/x/periph's
// conn/i2c.Bus or conn/spi.Conn sit underneath them.
package busio

import "context"

// I2CBus is the generic I²C bus abstraction spec.md §6 calls for:
// start_transfer, send, recv, nack, end_transfer, is_busy.
type I2CBus interface {
	// StartTransfer issues a (repeated) START plus the address byte and
	// returns whether a slave acknowledged.
	StartTransfer(ctx context.Context, addr7 uint8, rnw bool) (ack bool, err error)
	// Send pushes one byte in a TX phase, returning the slave's ack.
	Send(ctx context.Context, b byte) (ack bool, err error)
	// Recv reads one byte in an RX phase.
	Recv(ctx context.Context) (byte, error)
	// Nack sends a NACK instead of an ACK for the byte just read.
	Nack(ctx context.Context)
	// EndTransfer issues STOP.
	EndTransfer(ctx context.Context)
	// IsBusy reports whether a transfer is in progress.
	IsBusy() bool
}

// SPIBus is the byte-at-a-time outward SPI transport spec.md §6 names.
type SPIBus interface {
	Transfer(out byte) (in byte, err error)
}

// Line is a level-only GPIO-like output: a chip-select or an interrupt
// line. Set(true) asserts, Set(false) de-asserts; spec.md's chip-selects
// are active-low at the pin but callers are expected to pass the logical
// "selected" state rather than model polarity here.
type Line interface {
	Set(asserted bool)
}

// NopLine is a Line that discards every Set call, for controllers built
// without a board attached (unit tests, the scenario runner's defaults).
type NopLine struct{}

func (NopLine) Set(bool) {}

// LevelLine is the simplest stateful Line, useful for tests that want to
// observe the asserted state after the fact.
type LevelLine struct {
	asserted bool
}

func (l *LevelLine) Set(asserted bool) { l.asserted = asserted }
func (l *LevelLine) Asserted() bool    { return l.asserted }

// CallbackLine invokes Fn on every level change, used by cmd/aspeedmon to
// print IRQ transitions.
type CallbackLine struct {
	Fn func(asserted bool)
}

func (l *CallbackLine) Set(asserted bool) {
	if l.Fn != nil {
		l.Fn(asserted)
	}
}

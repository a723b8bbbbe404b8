// Package busiotest provides small in-memory I²C/SPI test doubles for the
// aspeedi2c and aspeedsmc packages, in the spirit of periph.io's
// conn/i2c/i2ctest and conn/spi/spitest record/playback fakes (the real
// periph packages target callers of a periph i2c.Bus/spi.Conn, not an
// emulated controller sitting below one, so these are hand-rolled rather
// than imported).
package busiotest

import (
	"context"
	"sync"
)

// Slave is a single addressable I²C device attached to a Bus.
type Slave interface {
	// Write delivers one byte from the master and reports whether the
	// slave acknowledges it.
	Write(b byte) (ack bool)
	// Read returns the next byte the slave shifts out.
	Read() byte
}

// Bus is a software I²C bus that routes a transaction to whichever Slave
// is registered at the addressed 7-bit address, in the shape spec.md §6
// describes ("a generic I²C bus abstraction").
type Bus struct {
	mu     sync.Mutex
	slaves map[uint8]Slave
	active Slave
	busy   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{slaves: map[uint8]Slave{}} }

// Attach registers slave at addr7.
func (b *Bus) Attach(addr7 uint8, slave Slave) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slaves[addr7] = slave
}

func (b *Bus) StartTransfer(_ context.Context, addr7 uint8, _ bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slaves[addr7]
	if !ok {
		b.active = nil
		b.busy = false
		return false, nil
	}
	b.active = s
	b.busy = true
	return true, nil
}

func (b *Bus) Send(_ context.Context, v byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return false, nil
	}
	return b.active.Write(v), nil
}

func (b *Bus) Recv(context.Context) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return 0, nil
	}
	return b.active.Read(), nil
}

func (b *Bus) Nack(context.Context) {}

func (b *Bus) EndTransfer(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = nil
	b.busy = false
}

func (b *Bus) IsBusy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// EchoSlave is a fixed-response Slave: it acks every write and replays a
// canned byte sequence on Read, cycling once exhausted. Used by
// aspeedi2c's end-to-end test (spec.md §8 property 6): a slave at 0x50
// that echoes [0xDE, 0xAD].
type EchoSlave struct {
	Bytes  []byte
	cursor int
}

func NewEchoSlave(bytes ...byte) *EchoSlave { return &EchoSlave{Bytes: bytes} }

func (s *EchoSlave) Write(byte) bool { return true }

func (s *EchoSlave) Read() byte {
	if len(s.Bytes) == 0 {
		return 0xFF
	}
	b := s.Bytes[s.cursor%len(s.Bytes)]
	s.cursor++
	return b
}

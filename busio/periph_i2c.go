package busio

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/periph/conn/i2c"
)

// PeriphI2CAdapter implements I2CBus on top of a periph.io i2c.Bus.
//
// periph's i2c.Bus.Tx does one whole addressed transaction at a time
// (write buffer then optional read buffer); the emulated controller in
// aspeedi2c instead frames a transaction byte-by-byte via
// START/TX/RX/STOP CMD writes. This adapter bridges the two shapes by
// buffering written bytes after StartTransfer and issuing a single Tx
// call: on the first Recv (write half plus a fixed-size read window) or,
// for a write-only transaction, on EndTransfer. This is indistinguishable from true
// byte-at-a-time framing to anything that isn't itself inspecting bus
// timing (out of scope per spec.md §1's non-goals).
type PeriphI2CAdapter struct {
	bus i2c.Bus

	mu      sync.Mutex
	busy    bool
	addr    uint16
	rnw     bool
	wbuf    []byte
	rbuf    []byte
	rCursor int
}

// NewPeriphI2CAdapter wraps bus.
func NewPeriphI2CAdapter(bus i2c.Bus) *PeriphI2CAdapter {
	return &PeriphI2CAdapter{bus: bus}
}

func (a *PeriphI2CAdapter) StartTransfer(_ context.Context, addr7 uint8, rnw bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = true
	a.addr = uint16(addr7)
	a.rnw = rnw
	a.wbuf = a.wbuf[:0]
	a.rbuf = nil
	a.rCursor = 0
	// periph has no separate addressing phase to probe ack against; we
	// optimistically ack here. A transport failure of the Tx issued by the
	// first Recv is returned from Recv; the error of a write-only flush in
	// EndTransfer is discarded.
	return true, nil
}

func (a *PeriphI2CAdapter) Send(_ context.Context, b byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.busy {
		return false, fmt.Errorf("busio: Send without StartTransfer")
	}
	a.wbuf = append(a.wbuf, b)
	return true, nil
}

func (a *PeriphI2CAdapter) Recv(_ context.Context) (byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.busy {
		return 0, fmt.Errorf("busio: Recv without StartTransfer")
	}
	if a.rbuf == nil {
		// First read of the phase: flush the write half (register pointer,
		// typically) and pull back a generous read window. Real I²C reads
		// are clocked one byte at a time by the master; periph's Tx wants a
		// fixed-size read buffer up front, so we size it generously and
		// serve bytes out of it; reading past it returns an error.
		a.rbuf = make([]byte, 256)
		if err := a.bus.Tx(a.addr, a.wbuf, a.rbuf); err != nil {
			return 0, err
		}
		a.rCursor = 0
	}
	if a.rCursor >= len(a.rbuf) {
		return 0, fmt.Errorf("busio: read past end of buffered transaction")
	}
	b := a.rbuf[a.rCursor]
	a.rCursor++
	return b, nil
}

func (a *PeriphI2CAdapter) Nack(context.Context) {
	// Nothing to do: periph has no explicit NACK primitive mid-transfer,
	// and the adapter already committed the read window in Recv.
}

func (a *PeriphI2CAdapter) EndTransfer(_ context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy && a.rbuf == nil && len(a.wbuf) > 0 {
		// Write-only transaction: flush now.
		_ = a.bus.Tx(a.addr, a.wbuf, nil)
	}
	a.busy = false
}

func (a *PeriphI2CAdapter) IsBusy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

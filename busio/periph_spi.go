package busio

import "periph.io/x/periph/conn/spi"

// PeriphSPIAdapter implements SPIBus on a periph.io spi.Conn by issuing
// one-byte full-duplex Tx calls, matching the emulated SC's byte-at-a-time
// shift register model (spec.md §4.2.2, §6).
type PeriphSPIAdapter struct {
	conn spi.Conn
}

// NewPeriphSPIAdapter wraps conn, which must already be in the mode the
// target device expects (periph's spi.Port.Connect result).
func NewPeriphSPIAdapter(conn spi.Conn) *PeriphSPIAdapter {
	return &PeriphSPIAdapter{conn: conn}
}

func (a *PeriphSPIAdapter) Transfer(out byte) (byte, error) {
	w := [1]byte{out}
	var r [1]byte
	if err := a.conn.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

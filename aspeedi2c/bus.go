package aspeedi2c

import (
	"context"
	"sync"

	"github.com/aspeed-bmc/coredevices/aspeedlog"
	"github.com/aspeed-bmc/coredevices/busio"
)

// Bus is one of the controller's N logical I²C busses: its own register
// window and its own master-mode CMD state machine (spec.md §3, §4.1).
type Bus struct {
	mu sync.Mutex

	id int

	ctrl     uint32
	timing   [2]uint32
	intrCtrl uint32
	intrSts  uint32
	cmd      uint32
	bufTX    uint8
	bufRX    uint8
	poolCtrl uint32
	state    TXState

	link busio.I2CBus
	irq  busio.Line
	log  *aspeedlog.Channels

	// ctrlAggregate sets the controller's aggregate intr_status bit for this bus
	// id and performs the atomic aggregation spec.md §4.1 requires.
	ctrlAggregate func(busID int, active bool)

	pool *[]byte
}

func newBus(id int, pool *[]byte, link busio.I2CBus, irq busio.Line, log *aspeedlog.Channels, aggregate func(int, bool)) *Bus {
	if link == nil {
		link = noopI2CBus{}
	}
	if irq == nil {
		irq = busio.NopLine{}
	}
	return &Bus{id: id, link: link, irq: irq, log: log, pool: pool, ctrlAggregate: aggregate}
}

// Reset restores the bus to its post-reset state (all registers zeroed,
// state machine idle).
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctrl = 0
	b.timing = [2]uint32{}
	b.intrCtrl = 0
	b.intrSts = 0
	b.cmd = 0
	b.bufTX = 0
	b.bufRX = 0
	b.poolCtrl = 0
	b.state = StateIdle
	b.irq.Set(false)
}

// ID returns the bus's numeric identifier, for PoolSlice and diagnostics.
func (b *Bus) ID() int { return b.id }

func (b *Bus) poolSlice(sliceFn func(int, uint32, uint32) (uint32, uint32)) []byte {
	off, length := sliceFn(b.id, b.ctrl, b.poolCtrl)
	pool := *b.pool
	end := off + length
	if end > uint32(len(pool)) {
		end = uint32(len(pool))
	}
	if off > end {
		off = end
	}
	return pool[off:end]
}

// ReadReg implements the per-bus register read side of spec.md §4.1's
// table.
func (b *Bus) ReadReg(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch offset {
	case RegFunCtrl:
		return b.ctrl
	case RegTiming1:
		return b.timing[0]
	case RegTiming2:
		return b.timing[1]
	case RegIntrCtrl:
		return b.intrCtrl
	case RegIntrSts:
		return b.intrSts
	case RegCmd:
		return (b.cmd &^ cmdTXStateMask) | b.state.encode()
	case RegDevAddr:
		b.log.Unimplemented.Printf("bus %d: DEV_ADDR read (slave mode unimplemented)", b.id)
		return 0
	case RegPoolCtrl:
		return b.poolCtrl
	case RegByteBuf:
		return uint32(b.bufRX)<<8 | uint32(b.bufTX)
	default:
		b.log.Unimplemented.Printf("bus %d: read of reserved offset %#x", b.id, offset)
		return 0xFFFFFFFF
	}
}

// WriteReg implements the per-bus register write side of spec.md §4.1's
// table. sliceFn resolves the pool buffer slice for this bus per the
// variant's PoolSlice function.
func (b *Bus) WriteReg(offset uint32, value uint32, sliceFn func(int, uint32, uint32) (uint32, uint32)) {
	b.mu.Lock()
	switch offset {
	case RegFunCtrl:
		if value&FunCtrlSlaveEn != 0 {
			b.log.Unimplemented.Printf("bus %d: slave mode enable requested, unimplemented", b.id)
		}
		b.ctrl = value & funCtrlWriteMask
	case RegTiming1:
		b.timing[0] = value & timing1WriteMask
	case RegTiming2:
		b.timing[1] = value & timing2WriteMask
	case RegIntrCtrl:
		b.intrCtrl = value & intrStatusMask
	case RegIntrSts:
		b.handleIntrStsClearLocked(value, sliceFn)
	case RegCmd:
		b.mu.Unlock()
		b.handleCmd(value, sliceFn)
		return
	case RegDevAddr:
		b.log.Unimplemented.Printf("bus %d: DEV_ADDR write (slave mode unimplemented)", b.id)
	case RegPoolCtrl:
		b.poolCtrl = value & poolCtrlWriteMask
	case RegByteBuf:
		b.bufTX = uint8(value)
	default:
		b.log.Unimplemented.Printf("bus %d: write of reserved offset %#x", b.id, offset)
	}
	b.mu.Unlock()
	b.raiseOrLower()
}

// handleIntrStsClearLocked performs the write-1-to-clear of INTR_STS and,
// if an RX command bit is still pending once the RX_DONE bit clears to
// zero, re-triggers RX for the next pool/byte (the "post-clear RX" cue in
// spec.md §4.1).
func (b *Bus) handleIntrStsClearLocked(value uint32, sliceFn func(int, uint32, uint32) (uint32, uint32)) {
	cleared := value & intrStatusMask
	wasRXDone := b.intrSts&IntrRXDone != 0
	b.intrSts &^= cleared
	pendingRX := b.cmd&CmdRX != 0
	needsRetrigger := wasRXDone && cleared&IntrRXDone != 0 && b.intrSts&IntrRXDone == 0 && pendingRX
	if needsRetrigger {
		b.mu.Unlock()
		b.doRX(sliceFn)
		b.mu.Lock()
	}
}

// raiseOrLower recomputes the aggregate bit and IRQ level after a
// register write, per spec.md §4.1's interrupt-raising rule.
func (b *Bus) raiseOrLower() {
	b.mu.Lock()
	active := b.intrSts&b.intrCtrl != 0
	b.mu.Unlock()
	b.irq.Set(active)
	if b.ctrlAggregate != nil {
		b.ctrlAggregate(b.id, active)
	}
}

// handleCmd executes the CMD write: START -> TX -> RX -> STOP in order,
// per spec.md §4.1.
func (b *Bus) handleCmd(value uint32, sliceFn func(int, uint32, uint32) (uint32, uint32)) {
	b.mu.Lock()
	if b.ctrl&FunCtrlMasterEn == 0 {
		b.log.Unimplemented.Printf("bus %d: CMD write while master mode disabled (slave mode unimplemented)", b.id)
		b.mu.Unlock()
		return
	}
	b.cmd = value & cmdLowMask
	b.mu.Unlock()

	if b.cmd&CmdMasterStart != 0 {
		if !b.doStart(sliceFn) {
			b.raiseOrLower()
			return
		}
	}
	if b.cmd&CmdTX != 0 {
		if !b.doTX(sliceFn) {
			b.raiseOrLower()
			return
		}
	}
	if b.cmd&CmdRX != 0 {
		b.doRX(sliceFn)
	}
	if b.cmd&CmdStop != 0 {
		b.doStop()
	}
	b.raiseOrLower()
}

// doStart runs the START phase. Returns false if no slave acknowledged
// the address (command bits stay pending, state stays in START).
func (b *Bus) doStart(sliceFn func(int, uint32, uint32) (uint32, uint32)) bool {
	b.mu.Lock()
	already := b.state == StateActive || b.state == StateStart || b.state == StateStartR
	txBuffEnable := b.cmd&cmdTxBuffEnable != 0
	var srcByte byte
	if txBuffEnable {
		slice := b.poolSlice(sliceFn)
		if len(slice) > 0 {
			srcByte = slice[0]
		}
	} else {
		srcByte = b.bufTX
	}
	addr7 := srcByte >> 1
	rnw := srcByte&1 != 0
	if already {
		b.state = StateStartR
	} else {
		b.state = StateStart
	}
	b.mu.Unlock()

	ack, _ := b.link.StartTransfer(context.Background(), addr7, rnw)

	b.mu.Lock()
	defer b.mu.Unlock()
	if ack {
		b.intrSts |= IntrTXAck
	} else {
		b.intrSts |= IntrTXNak
	}
	// START implies TX of the address byte.
	b.cmd &^= CmdMasterStart | CmdTX
	if !ack {
		// "no slave found": state stays in START, command bits beyond
		// START/TX are not processed this call.
		return false
	}
	b.state = StateActive
	return true
}

// doTX runs the TX phase: either pool-buffered burst or the single BYTE_BUF
// byte.
func (b *Bus) doTX(sliceFn func(int, uint32, uint32) (uint32, uint32)) bool {
	b.mu.Lock()
	b.state = StateTXD
	txBuffEnable := b.cmd&cmdTxBuffEnable != 0
	var bytes []byte
	if txBuffEnable {
		slice := b.poolSlice(sliceFn)
		count := b.poolCtrl & poolCtrlTxCountMask
		if uint32(len(slice)) < count {
			count = uint32(len(slice))
		}
		bytes = append(bytes, slice[:count]...)
	} else {
		bytes = []byte{b.bufTX}
	}
	b.mu.Unlock()

	ok := true
	for _, by := range bytes {
		ack, _ := b.link.Send(context.Background(), by)
		if !ack {
			ok = false
			break
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmd &^= CmdTX
	if ok {
		b.intrSts |= IntrTXAck
	} else {
		b.intrSts |= IntrTXNak
		b.endTransferLocked()
		return false
	}
	b.state = StateActive
	return true
}

// doRX runs the RX phase: either pool-buffered burst or the single byte
// into BYTE_BUF.RX.
func (b *Bus) doRX(sliceFn func(int, uint32, uint32) (uint32, uint32)) {
	b.mu.Lock()
	b.state = StateRXD
	rxBuffEnable := b.cmd&cmdRxBuffEnable != 0
	lastNack := b.cmd&CmdRXLastNack != 0
	var rxSize uint32 = 1
	if rxBuffEnable {
		rxSize = (b.poolCtrl & poolCtrlRxSizeMask) >> poolCtrlRxSizeShift
		if rxSize == 0 {
			rxSize = 1
		}
	}
	b.mu.Unlock()

	got := make([]byte, 0, rxSize)
	for i := uint32(0); i < rxSize; i++ {
		by, _ := b.link.Recv(context.Background())
		got = append(got, by)
	}
	if lastNack {
		b.link.Nack(context.Background())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if rxBuffEnable {
		slice := b.poolSlice(sliceFn)
		n := copy(slice, got)
		b.poolCtrl = (b.poolCtrl &^ poolCtrlRxCountMask) | (uint32(n) << poolCtrlRxCountShift)
	} else if len(got) > 0 {
		b.bufRX = got[0]
	}
	b.cmd &^= CmdRX
	b.intrSts |= IntrRXDone
	b.state = StateActive
}

// doStop runs the STOP phase, including the abnormal-STOP case (spec.md
// §4.1, §8 property 7).
func (b *Bus) doStop() {
	b.mu.Lock()
	if b.state != StateActive {
		b.log.GuestError.Printf("bus %d: STOP without an active transfer", b.id)
		b.intrSts |= IntrAbnormal
		b.cmd &^= CmdStop
		b.mu.Unlock()
		return
	}
	b.state = StateStop
	b.mu.Unlock()

	b.link.EndTransfer(context.Background())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.intrSts |= IntrNormalStop
	b.cmd &^= CmdStop
	b.state = StateIdle
}

// endTransferLocked ends the bus transaction after a NAK abort. Caller
// holds b.mu; released for the duration of the collaborator call.
func (b *Bus) endTransferLocked() {
	b.mu.Unlock()
	b.link.EndTransfer(context.Background())
	b.mu.Lock()
	b.state = StateIdle
}

// IntrStatus returns the raw pending-interrupt register, for the
// controller's aggregate computation and for SaveState.
func (b *Bus) IntrStatus() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intrSts
}

func (b *Bus) IntrCtrl() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intrCtrl
}

type noopI2CBus struct{}

func (noopI2CBus) StartTransfer(context.Context, uint8, bool) (bool, error) { return false, nil }
func (noopI2CBus) Send(context.Context, byte) (bool, error)                 { return false, nil }
func (noopI2CBus) Recv(context.Context) (byte, error)                       { return 0xFF, nil }
func (noopI2CBus) Nack(context.Context)                                     {}
func (noopI2CBus) EndTransfer(context.Context)                              {}
func (noopI2CBus) IsBusy() bool                                             { return false }

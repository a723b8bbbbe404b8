package aspeedi2c_test

import (
	"bytes"
	"testing"

	"github.com/aspeed-bmc/coredevices/aspeedi2c"
	"github.com/aspeed-bmc/coredevices/busio"
	"github.com/aspeed-bmc/coredevices/busio/busiotest"
)

// masterStartRead drives one full master-mode read transaction on the bus
// whose register window starts at busBase, using BYTE_BUF (no pool
// buffering): START with addr7<<1|1, one RX, then STOP. It returns the
// received byte (BYTE_BUF bits 15:8).
func masterStartRead(t *testing.T, c *aspeedi2c.Controller, busBase uint32, addr7 uint8) byte {
	t.Helper()
	c.Write32(busBase+aspeedi2c.RegFunCtrl, aspeedi2c.FunCtrlMasterEn)
	c.Write32(busBase+aspeedi2c.RegByteBuf, uint32(addr7)<<1|1)
	c.Write32(busBase+aspeedi2c.RegCmd, aspeedi2c.CmdMasterStart|aspeedi2c.CmdRX|aspeedi2c.CmdStop)
	return byte(c.Read32(busBase+aspeedi2c.RegByteBuf) >> 8)
}

func TestEchoSlaveEndToEnd(t *testing.T) {
	// spec.md §8 property 6: a slave at 0x50 on bus 3 echoing [0xDE, 0xAD].
	bus := busiotest.NewBus()
	bus.Attach(0x50, busiotest.NewEchoSlave(0xDE, 0xAD))

	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(3, bus))
	busBase := aspeedi2c.VariantAST2500.BusWindowOffset(3)

	got1 := masterStartRead(t, c, busBase, 0x50)
	if got1 != 0xDE {
		t.Fatalf("first byte = %#x, want 0xDE", got1)
	}

	sts := c.Read32(busBase + aspeedi2c.RegIntrSts)
	if sts&aspeedi2c.IntrRXDone == 0 {
		t.Fatalf("INTR_STS missing RX_DONE: %#x", sts)
	}
	if sts&aspeedi2c.IntrNormalStop == 0 {
		t.Fatalf("INTR_STS missing NORMAL_STOP: %#x", sts)
	}

	// Clear and read again: the echo slave cycles to the next byte.
	c.Write32(busBase+aspeedi2c.RegIntrSts, sts)
	got2 := masterStartRead(t, c, busBase, 0x50)
	if got2 != 0xAD {
		t.Fatalf("second byte = %#x, want 0xAD", got2)
	}
}

func TestNoSlaveNacksStart(t *testing.T) {
	bus := busiotest.NewBus() // nothing attached
	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(0, bus))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(0)

	c.Write32(base+aspeedi2c.RegFunCtrl, aspeedi2c.FunCtrlMasterEn)
	c.Write32(base+aspeedi2c.RegByteBuf, uint32(0x50)<<1|1)
	c.Write32(base+aspeedi2c.RegCmd, aspeedi2c.CmdMasterStart|aspeedi2c.CmdRX|aspeedi2c.CmdStop)

	sts := c.Read32(base + aspeedi2c.RegIntrSts)
	if sts&aspeedi2c.IntrTXNak == 0 {
		t.Fatalf("expected TX_NAK for unanswered address, got %#x", sts)
	}
	if sts&aspeedi2c.IntrRXDone != 0 {
		t.Fatalf("RX should not have run after NAK, got %#x", sts)
	}
}

func TestAbnormalStopWhenIdle(t *testing.T) {
	// spec.md §8 property 7: STOP issued without an active transfer raises
	// INTR_ABNORMAL and does not call the collaborator's EndTransfer.
	bus := busiotest.NewBus()
	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(0, bus))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(0)

	c.Write32(base+aspeedi2c.RegFunCtrl, aspeedi2c.FunCtrlMasterEn)
	c.Write32(base+aspeedi2c.RegCmd, aspeedi2c.CmdStop)

	sts := c.Read32(base + aspeedi2c.RegIntrSts)
	if sts&aspeedi2c.IntrAbnormal == 0 {
		t.Fatalf("expected INTR_ABNORMAL, got %#x", sts)
	}
	if sts&aspeedi2c.IntrNormalStop != 0 {
		t.Fatalf("should not have reached NORMAL_STOP, got %#x", sts)
	}
}

func TestAggregateIRQRaisesAndLowers(t *testing.T) {
	// spec.md §8 property 9: the controller's aggregate intr_status bit for
	// a bus tracks (bus.intr_status & bus.intr_ctrl) != 0.
	bus := busiotest.NewBus()
	bus.Attach(0x50, busiotest.NewEchoSlave(0x11))
	irq := &busio.LevelLine{}

	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(2, bus), aspeedi2c.WithAggregateIRQ(irq))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(2)

	c.Write32(base+aspeedi2c.RegIntrCtrl, aspeedi2c.IntrRXDone)
	if irq.Asserted() {
		t.Fatalf("IRQ asserted before any activity")
	}

	masterStartRead(t, c, base, 0x50)
	if !irq.Asserted() {
		t.Fatalf("expected aggregate IRQ asserted after RX_DONE with matching INTR_CTRL")
	}
	if c.IntrStatus()&(1<<2) == 0 {
		t.Fatalf("controller intr_status missing bus 2's bit: %#x", c.IntrStatus())
	}

	// INTR_STS is write-1-to-clear: write the RX_DONE bit itself to clear
	// it, leaving every other pending bit untouched.
	c.Write32(base+aspeedi2c.RegIntrSts, aspeedi2c.IntrRXDone)
	if irq.Asserted() {
		t.Fatalf("expected aggregate IRQ to lower after clearing the only pending source tracked by INTR_CTRL")
	}
}

func TestPoolBufferedTXRX(t *testing.T) {
	bus := busiotest.NewBus()
	bus.Attach(0x20, busiotest.NewEchoSlave(0xAA, 0xBB, 0xCC))

	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(5, bus))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(5)
	poolBase := aspeedi2c.VariantAST2500.PoolBase + 5*0x10

	c.Write32(base+aspeedi2c.RegFunCtrl, aspeedi2c.FunCtrlMasterEn)
	c.Write32(poolBase, uint32(0x20)<<1|1)
	c.Write32(base+aspeedi2c.RegPoolCtrl, 3<<8) // RX_SIZE=3

	const cmdTxBuffEnable = 1 << 6
	const cmdRxBuffEnable = 1 << 7
	c.Write32(base+aspeedi2c.RegCmd, aspeedi2c.CmdMasterStart|aspeedi2c.CmdRX|aspeedi2c.CmdStop|cmdTxBuffEnable|cmdRxBuffEnable)

	got := c.Read32(poolBase)
	if byte(got) != 0xAA || byte(got>>8) != 0xBB || byte(got>>16) != 0xCC {
		t.Fatalf("pool RX burst = %#x, want bytes AA BB CC in first three positions", got)
	}

	poolCtrl := c.Read32(base + aspeedi2c.RegPoolCtrl)
	if rxCount := poolCtrl >> 24; rxCount != 3 {
		t.Fatalf("RX_COUNT = %d, want 3", rxCount)
	}
}

func TestReset(t *testing.T) {
	bus := busiotest.NewBus()
	bus.Attach(0x50, busiotest.NewEchoSlave(0x01))
	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(0, bus))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(0)

	masterStartRead(t, c, base, 0x50)
	if c.Read32(base+aspeedi2c.RegIntrSts) == 0 {
		t.Fatalf("expected nonzero INTR_STS before reset")
	}

	c.Reset()
	if got := c.Read32(base + aspeedi2c.RegIntrSts); got != 0 {
		t.Fatalf("INTR_STS after Reset() = %#x, want 0", got)
	}
	if got := c.Read32(base + aspeedi2c.RegFunCtrl); got != 0 {
		t.Fatalf("FUN_CTRL after Reset() = %#x, want 0", got)
	}
	if got := c.IntrStatus(); got != 0 {
		t.Fatalf("controller intr_status after Reset() = %#x, want 0", got)
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	bus := busiotest.NewBus()
	bus.Attach(0x50, busiotest.NewEchoSlave(0x42))
	c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(1, bus))
	base := aspeedi2c.VariantAST2500.BusWindowOffset(1)

	c.Write32(base+aspeedi2c.RegTiming1, 0x1234)
	masterStartRead(t, c, base, 0x50)

	var buf bytes.Buffer
	if err := c.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(1, bus))
	if err := restored.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	// TIMING1 keeps only the bits in its 0x0FFFFF0F write mask.
	if got := restored.Read32(base + aspeedi2c.RegTiming1); got != 0x1204 {
		t.Fatalf("restored TIMING1 = %#x, want 0x1204", got)
	}
	if got, want := restored.Read32(base+aspeedi2c.RegIntrSts), c.Read32(base+aspeedi2c.RegIntrSts); got != want {
		t.Fatalf("restored INTR_STS = %#x, want %#x", got, want)
	}
}

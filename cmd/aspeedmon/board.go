// board.go assembles a minimal Aspeed BMC SoC slice for the monitor to
// attach to: one I²C multi-bus controller and one SMC/FMC flash
// controller, wired the way original_source/hw/arm/aspeed.c's SoC init
// routine wires them, minus the CPU, GPIO and interrupt controller that
// sit between them on real silicon (out of scope).
package main

import (
	"github.com/aspeed-bmc/coredevices/aspeedi2c"
	"github.com/aspeed-bmc/coredevices/aspeedsmc"
	"github.com/aspeed-bmc/coredevices/busio"
	"github.com/aspeed-bmc/coredevices/busio/busiotest"
)

// Board bundles one IC and one SC instance plus the peripherals the demo
// hangs off them.
type Board struct {
	I2C *aspeedi2c.Controller
	SMC *aspeedsmc.Controller

	SMCIRQ *busio.LevelLine
}

// NewBoard assembles an AST2500-class board: a 14-bus I²C controller with
// an EEPROM on bus 0 and an RTC on bus 1, and a 3-chip-select FMC flash
// controller with CS0 backed by a blank boot flash.
func NewBoard() *Board {
	eepromBus := busiotest.NewBus()
	eepromBus.Attach(0x50, busiotest.NewEchoSlave(0xDE, 0xAD, 0xBE, 0xEF))

	rtcBus := busiotest.NewBus()
	rtcBus.Attach(0x68, busiotest.NewEchoSlave(0x00, 0x00, 0x12, 0x08, 0x01))

	i2c := aspeedi2c.NewAST2500(
		aspeedi2c.WithBusLink(0, eepromBus),
		aspeedi2c.WithBusLink(1, rtcBus),
	)

	bootFlash := busiotest.NewFakeSPIFlash(make([]byte, 1<<20))
	irq := &busio.LevelLine{}
	smc := aspeedsmc.NewFMCAST2500(
		aspeedsmc.WithSPI(bootFlash),
		aspeedsmc.WithCSLines([]busio.Line{bootFlash, busio.NopLine{}, busio.NopLine{}}),
		aspeedsmc.WithIRQ(irq),
	)

	return &Board{I2C: i2c, SMC: smc, SMCIRQ: irq}
}

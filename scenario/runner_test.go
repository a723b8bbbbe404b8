package scenario_test

import (
	"testing"

	"github.com/aspeed-bmc/coredevices/aspeedi2c"
	"github.com/aspeed-bmc/coredevices/aspeedsmc"
	"github.com/aspeed-bmc/coredevices/busio"
	"github.com/aspeed-bmc/coredevices/busio/busiotest"
	"github.com/aspeed-bmc/coredevices/scenario"
)

// newBoardControllers builds the same pair of controllers cmd/aspeedmon's
// board.go assembles (the EEPROM on I²C bus 0 and the boot flash on SMC
// CS0), minus board.go's RTC on bus 1 and its SMC IRQ line, which no
// checked-in scenario script uses.
func newBoardControllers() (*aspeedi2c.Controller, *aspeedsmc.Controller) {
	eepromBus := busiotest.NewBus()
	eepromBus.Attach(0x50, busiotest.NewEchoSlave(0xDE, 0xAD, 0xBE, 0xEF))

	i2c := aspeedi2c.NewAST2500(aspeedi2c.WithBusLink(0, eepromBus))

	bootFlash := busiotest.NewFakeSPIFlash(make([]byte, 1<<20))
	smc := aspeedsmc.NewFMCAST2500(
		aspeedsmc.WithSPI(bootFlash),
		aspeedsmc.WithCSLines([]busio.Line{bootFlash, busio.NopLine{}, busio.NopLine{}}),
	)
	return i2c, smc
}

func runScenario(t *testing.T, path string) {
	t.Helper()
	i2c, smc := newBoardControllers()

	r := scenario.NewRunner()
	defer r.Close()
	r.Attach("i2c", i2c)
	r.Attach("smc", smc)

	if err := r.Run(path); err != nil {
		t.Fatal(err)
	}
}

func TestI2CEchoScenario(t *testing.T) {
	runScenario(t, "testdata/i2c_echo.lua")
}

func TestDMAChecksumScenario(t *testing.T) {
	runScenario(t, "testdata/dma_checksum.lua")
}

func TestRegisterAllowListScenario(t *testing.T) {
	runScenario(t, "testdata/register_allowlist.lua")
}

package aspeedsmc

import (
	"errors"
	"fmt"

	"github.com/aspeed-bmc/coredevices/iospace"
)

// windowAS adapts the flash-window Container to the iospace.AddressSpace
// collaborator contract spec.md §6 names for DMA ("flash_as"). DMA reads
// the flash through the same Read/Fast-Read MMIO path a CPU load would
// take, so no separate content store exists for it to bypass.
type windowAS struct {
	c *Controller
}

func (w windowAS) LoadU32LE(addr uint32) (uint32, error) {
	base := w.c.variant.FlashWindowBase
	if addr < base || addr-base >= w.c.window.Size() {
		return 0, fmt.Errorf("aspeedsmc: flash_as load out of range at %#x", addr)
	}
	return w.c.window.Read32(addr - base), nil
}

func (w windowAS) StoreU32LE(addr uint32, value uint32) error {
	base := w.c.variant.FlashWindowBase
	if addr < base || addr-base >= w.c.window.Size() {
		return fmt.Errorf("aspeedsmc: flash_as store out of range at %#x", addr)
	}
	w.c.window.Write32(addr-base, value)
	return nil
}

var errChecksumDirection = errors.New("aspeedsmc: checksum DMA requires read-from-flash direction")

// handleDMACtrlWrite dispatches a DMA_CTRL register write (spec.md
// §4.2.3).
func (c *Controller) handleDMACtrlWrite(value uint32) {
	c.mu.Lock()
	v := c.variant
	wasEnabled := c.regs[regIndex(RegDMACtrl)]&DMACtrlEnable != 0
	inProgress := wasEnabled && c.regs[regIndex(RegIntrCtrl)]&IntrCtrlDMAStatus == 0

	if value&DMACtrlEnable == 0 {
		c.regs[regIndex(RegDMACtrl)] = value
		c.regs[regIndex(RegIntrCtrl)] &^= IntrCtrlDMAStatus
		c.regs[regIndex(RegDMACksum)] = 0
		c.mu.Unlock()
		c.irq.Set(false)
		return
	}
	if inProgress {
		c.log.GuestError.Printf("%s: DMA_CTRL write while a transfer is already in progress, ignored", v.Name)
		c.mu.Unlock()
		return
	}
	c.regs[regIndex(RegDMACtrl)] = value
	c.mu.Unlock()

	var err error
	if value&DMACtrlCksum != 0 {
		if value&DMACtrlCalib != 0 {
			c.runCalibration(value)
		}
		err = c.runChecksum()
	} else {
		err = c.runCopy(value&DMACtrlWrite != 0)
	}
	if err != nil {
		return
	}

	c.mu.Lock()
	c.regs[regIndex(RegIntrCtrl)] |= IntrCtrlDMAStatus
	raiseIRQ := c.regs[regIndex(RegIntrCtrl)]&IntrCtrlDMAEn != 0
	c.mu.Unlock()
	if raiseIRQ {
		c.irq.Set(true)
	}
}

// runCalibration implements spec.md §4.2.3's calibration path: decode
// the FREQ nibble into an HCLK divisor, program TIMINGS/CTRL0 of CS0
// accordingly, and record whether the divisor/delay combination should
// force a bad checksum.
func (c *Controller) runCalibration(ctrl uint32) {
	freq := uint8((ctrl >> DMACtrlFreqShift) & DMACtrlFreqMask)
	delay := uint8((ctrl >> DMACtrlDelayShift) & DMACtrlDelayMask)
	divisor := hclkDivisor(freq)

	c.mu.Lock()
	if divisor >= 1 && divisor <= 5 {
		nibbleShift := uint(divisor-1) * 4
		timings := c.regs[regIndex(c.variant.RegTimings)]
		timings = (timings &^ (0xF << nibbleShift)) | (uint32(delay) << nibbleShift)
		c.regs[regIndex(c.variant.RegTimings)] = timings
		c.regs[regIndex(c.variant.RegCtrl0)] = (c.regs[regIndex(c.variant.RegCtrl0)] &^ (CtrlClockFreqMask << CtrlClockFreqShift)) | ClockFreq(divisor)
	}
	c.calibFailPending = calibrationFails(divisor, delay) && c.injectFailure
	c.mu.Unlock()
}

// calibrationFails implements the failure-injection rule (spec.md
// §4.2.3): divisor 1 always fails, 2 fails when delay&7<2, 3 fails when
// delay&7<1, 4 and above never fail.
func calibrationFails(divisor, delay uint8) bool {
	switch {
	case divisor == 1:
		return true
	case divisor == 2:
		return delay&7 < 2
	case divisor == 3:
		return delay&7 < 1
	default:
		return false
	}
}

// runChecksum implements the read-only checksum loop (spec.md §4.2.3).
// WRITE direction is a guest-programming error: reject and leave the
// registers untouched.
func (c *Controller) runChecksum() error {
	c.mu.Lock()
	if c.regs[regIndex(RegDMACtrl)]&DMACtrlWrite != 0 {
		c.log.GuestError.Printf("%s: checksum DMA requested with WRITE direction, ignored", c.variant.Name)
		c.mu.Unlock()
		return errChecksumDirection
	}
	as := windowAS{c}
	flashAddr := c.variant.FlashWindowBase | c.regs[regIndex(RegDMAFlash)]
	length := c.regs[regIndex(RegDMALen)]
	var checksum uint32
	fail := c.calibFailPending
	c.mu.Unlock()

	var abortErr error
	for length >= 4 {
		word, err := as.LoadU32LE(flashAddr)
		if err != nil {
			abortErr = err
			break
		}
		checksum += word
		flashAddr += 4
		length -= 4
	}
	if fail {
		checksum = 0xBADC0DE
	}

	c.mu.Lock()
	c.regs[regIndex(RegDMAFlash)] = flashAddr & c.variant.DMAFlashMask
	c.regs[regIndex(RegDMALen)] = length
	c.regs[regIndex(RegDMACksum)] = checksum
	c.calibFailPending = false
	c.mu.Unlock()
	return abortErr
}

// runCopy implements the bidirectional copy loop (spec.md §4.2.3).
// toFlash selects DRAM->flash; both directions accumulate the running
// sum into DMA_CHECKSUM.
func (c *Controller) runCopy(toFlash bool) error {
	c.mu.Lock()
	flashAddr := c.variant.FlashWindowBase | c.regs[regIndex(RegDMAFlash)]
	dramAddr := c.sdramBase | c.regs[regIndex(RegDMADRAM)]
	length := c.regs[regIndex(RegDMALen)]
	dram := c.dram
	var checksum uint32
	c.mu.Unlock()

	as := windowAS{c}
	var abortErr error
	for length >= 4 {
		var word uint32
		var err error
		if toFlash {
			word, err = dram.LoadU32LE(dramAddr)
			if err == nil {
				err = as.StoreU32LE(flashAddr, word)
			}
		} else {
			word, err = as.LoadU32LE(flashAddr)
			if err == nil {
				err = dram.StoreU32LE(dramAddr, word)
			}
		}
		if err != nil {
			abortErr = err
			break
		}
		checksum += word
		flashAddr += 4
		dramAddr += 4
		length -= 4
	}

	c.mu.Lock()
	c.regs[regIndex(RegDMAFlash)] = flashAddr & c.variant.DMAFlashMask
	c.regs[regIndex(RegDMADRAM)] = dramAddr & c.variant.DMADRAMMask
	c.regs[regIndex(RegDMALen)] = length
	c.regs[regIndex(RegDMACksum)] = checksum
	c.mu.Unlock()
	return abortErr
}

var _ iospace.AddressSpace = windowAS{}

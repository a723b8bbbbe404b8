package aspeedsmc_test

import (
	"bytes"
	"testing"

	"github.com/aspeed-bmc/coredevices/aspeedsmc"
	"github.com/aspeed-bmc/coredevices/busio"
	"github.com/aspeed-bmc/coredevices/busio/busiotest"
)

// spiRecorder captures every byte transferred over the outward SPI bus,
// for tests that care about the exact wire sequence (the snoop property)
// rather than flash content.
type spiRecorder struct {
	out []byte
}

func (r *spiRecorder) Transfer(b byte) (byte, error) {
	r.out = append(r.out, b)
	return 0xFF, nil
}

const (
	regConf     = 0x00
	regCECtrl   = 0x04
	regIntrCtrl = 0x08
	regCtrl0    = 0x10
	regSegAddr0 = 0x30
	regDummy    = 0x54
	regDMACtrl  = 0x80
	regDMAFlash = 0x84
	regDMADRAM  = 0x88
	regDMALen   = 0x8C
	regDMACksum = 0x90
	regTimings  = 0x94
)

// TestSegmentRoundTrip checks spec.md §8 property 1 for a representative
// sample of each encoding (absolute 8 MiB units on the 2400/2500,
// offset-based 1 MiB units on the 2600).
func TestSegmentRoundTrip(t *testing.T) {
	base := uint32(0x20000000)
	for _, size := range []uint32{8 << 20, 16 << 20, 32 << 20} {
		reg := aspeedsmc.VariantAST2400FMC.EncodeSegment(aspeedsmc.Segment{Addr: base, Size: size})
		got := aspeedsmc.VariantAST2400FMC.DecodeSegment(base, reg)
		if got.Addr != base || got.Size != size {
			t.Errorf("2400 round-trip size %#x: got %+v", size, got)
		}
	}

	base2600 := aspeedsmc.VariantAST2600FMC.FlashWindowBase
	for _, size := range []uint32{1 << 20, 4 << 20, 16 << 20} {
		reg := aspeedsmc.VariantAST2600FMC.EncodeSegment(aspeedsmc.Segment{Addr: base2600, Size: size})
		got := aspeedsmc.VariantAST2600FMC.DecodeSegment(base2600, reg)
		if got.Addr != base2600 || got.Size != size {
			t.Errorf("2600 round-trip size %#x: got %+v", size, got)
		}
	}
}

// TestCS0Immutable checks spec.md §8 property 2: CS0's start address
// cannot be moved.
func TestCS0Immutable(t *testing.T) {
	c := aspeedsmc.NewFMCAST2500()
	before := c.Read32(regSegAddr0)

	bogus := aspeedsmc.VariantAST2500FMC.EncodeSegment(aspeedsmc.Segment{Addr: 0x21000000, Size: 32 << 20})
	c.Write32(regSegAddr0, bogus)

	after := c.Read32(regSegAddr0)
	seg := aspeedsmc.VariantAST2500FMC.DecodeSegment(aspeedsmc.VariantAST2500FMC.FlashWindowBase, after)
	if seg.Addr != aspeedsmc.VariantAST2500FMC.FlashWindowBase {
		t.Fatalf("CS0 start moved to %#x", seg.Addr)
	}
	if before == bogus {
		t.Fatalf("test setup produced a no-op write")
	}
}

// TestSegmentRelocation checks spec.md §8 property 3: CS1 can be
// relocated within the flash window, and the window's fallback handler
// reads zero outside any enabled segment.
func TestSegmentRelocation(t *testing.T) {
	flash1 := busiotest.NewFakeSPIFlash([]byte{0xAA, 0xBB, 0xCC, 0xDD})
	c := aspeedsmc.NewFMCAST2500(
		aspeedsmc.WithSPI(flash1),
		aspeedsmc.WithCSLines([]busio.Line{busio.NopLine{}, flash1, busio.NopLine{}}),
	)

	// Move CS1 into the unclaimed tail of the window, clear of CS0's and
	// CS2's default segments, so the relocated read can't land on CS0's
	// region by coincidence.
	v := aspeedsmc.VariantAST2500FMC
	const relocatedOffset = 0x0C000000
	const relocatedSize = 32 << 20
	newBase := v.FlashWindowBase + relocatedOffset
	reg := v.EncodeSegment(aspeedsmc.Segment{Addr: newBase, Size: relocatedSize})
	c.Write32(regSegAddr0+1*4, reg)

	// Configure CS1 into Read Mode with default command, then read
	// through the relocated window offset.
	c.Write32(regCtrl0+1*4, aspeedsmc.ModeRead)
	got := c.Window().Read32(relocatedOffset)
	want := uint32(0xAA) | uint32(0xBB)<<8 | uint32(0xCC)<<16 | uint32(0xDD)<<24
	if got != want {
		t.Fatalf("relocated CS1 read = %#x, want %#x", got, want)
	}

	// CS1's old slot, now vacated, falls through to the window's default
	// (zero) handler.
	const vacatedOffset = 0x08000000
	if got := c.Window().Read32(vacatedOffset); got != 0 {
		t.Fatalf("fallthrough read at offset %#x = %#x, want 0", vacatedOffset, got)
	}
}

// TestDMAChecksumDeterminism checks spec.md §8 property 4.
func TestDMAChecksumDeterminism(t *testing.T) {
	content := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	flash0 := busiotest.NewFakeSPIFlash(content)
	irq := &busio.LevelLine{}
	c := aspeedsmc.NewFMCAST2400(
		aspeedsmc.WithSPI(flash0),
		aspeedsmc.WithCSLines([]busio.Line{flash0}),
		aspeedsmc.WithIRQ(irq),
	)

	c.Write32(regCtrl0, aspeedsmc.ModeRead)
	c.Write32(regDMAFlash, 0)
	c.Write32(regDMALen, uint32(len(content)))
	c.Write32(regIntrCtrl, 1<<3) // DMA_EN

	c.Write32(regDMACtrl, 1 /* ENABLE */ |1<<2 /* CKSUM */)

	if got, want := c.Read32(regDMACksum), uint32(1+2+3); got != want {
		t.Fatalf("checksum = %#x, want %#x", got, want)
	}
	if got := c.Read32(regDMAFlash); got != uint32(len(content)) {
		t.Fatalf("DMA_FLASH_ADDR = %#x, want %#x", got, len(content))
	}
	if got := c.Read32(regDMALen); got != 0 {
		t.Fatalf("DMA_LEN = %#x, want 0", got)
	}
	if !irq.Asserted() {
		t.Fatalf("IRQ not asserted after DMA completion with DMA_EN set")
	}
}

// TestDMACalibrationFailureInjection checks spec.md §8 property 5.
func TestDMACalibrationFailureInjection(t *testing.T) {
	content := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	flash0 := busiotest.NewFakeSPIFlash(content)
	c := aspeedsmc.NewFMCAST2400(
		aspeedsmc.WithSPI(flash0),
		aspeedsmc.WithCSLines([]busio.Line{flash0}),
		aspeedsmc.WithInjectFailure(true),
	)

	c.Write32(regCtrl0, aspeedsmc.ModeRead)
	c.Write32(regDMAFlash, 0)
	c.Write32(regDMALen, uint32(len(content)))

	freqForDivisor1 := uint32(15) // hclkDivisors[0] == 15, decodes to divisor 1
	ctrl := uint32(1) | 1<<2 | 1<<3 | (freqForDivisor1 << 4)
	c.Write32(regDMACtrl, ctrl)

	if got := c.Read32(regDMACksum); got != 0x0BADC0DE {
		t.Fatalf("checksum = %#x, want 0xBADC0DE", got)
	}
}

// TestRegisterAllowList checks spec.md §8 property 10.
func TestRegisterAllowList(t *testing.T) {
	c := aspeedsmc.NewFMCAST2400()
	const reservedOffset = 0x5C
	if got := c.Read32(reservedOffset); got != 0xFFFFFFFF {
		t.Fatalf("read of reserved offset = %#x, want 0xFFFFFFFF", got)
	}
	c.Write32(reservedOffset, 0x12345678)
	if got := c.Read32(reservedOffset); got != 0xFFFFFFFF {
		t.Fatalf("write to reserved offset should not become observable: got %#x", got)
	}
}

// TestSnoopDummyInjection checks spec.md §8 property 8.
func TestSnoopDummyInjection(t *testing.T) {
	rec := &spiRecorder{}
	cs := &busio.LevelLine{}
	c := aspeedsmc.NewFMCAST2400(aspeedsmc.WithSPI(rec), aspeedsmc.WithCSLines([]busio.Line{cs}))

	c.Write32(regDummy, 0x5A)
	// User Mode, CS asserted (CE_STOP_ACTIVE == 0).
	c.Write32(regCtrl0, uint32(aspeedsmc.ModeUser))

	w := c.Window()
	w.Write8(0, 0x0B) // FAST_READ opcode: 1 dummy byte, 3-byte address on the 2400.
	w.Write8(0, 0x00) // address byte 1
	w.Write8(0, 0x00) // address byte 2
	w.Write8(0, 0x00) // address byte 3
	w.Write8(0, 0x00) // guest's own "dummy" byte: must be replaced by DUMMY_DATA.
	w.Write8(0, 0x99) // first real data byte: passes through untouched.

	want := []byte{0x0B, 0x00, 0x00, 0x00, 0x5A, 0x99}
	if len(rec.out) != len(want) {
		t.Fatalf("transferred %d bytes, want %d: %x", len(rec.out), len(want), rec.out)
	}
	for i, b := range want {
		if rec.out[i] != b {
			t.Fatalf("byte %d = %#x, want %#x (%x)", i, rec.out[i], b, rec.out)
		}
	}
}

// TestSaveLoadStateRoundTrip round-trips a handful of registers through
// SaveState/LoadState.
func TestSaveLoadStateRoundTrip(t *testing.T) {
	c := aspeedsmc.NewFMCAST2400()
	c.Write32(regConf, 0xABCD0000)
	c.Write32(regTimings, 0x11223344)

	var buf bytes.Buffer
	if err := c.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	c2 := aspeedsmc.NewFMCAST2400()
	if err := c2.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := c2.Read32(regConf); got != 0xABCD0000 {
		t.Fatalf("CONF after restore = %#x", got)
	}
	if got := c2.Read32(regTimings); got != 0x11223344 {
		t.Fatalf("TIMINGS after restore = %#x", got)
	}
}

// TestNumCSClamp checks spec.md §9 item 3: a board wiring more
// chip-selects than the variant supports gets clamped, logged, not
// panicked.
func TestNumCSClamp(t *testing.T) {
	c := aspeedsmc.NewFMCAST2500(aspeedsmc.WithNumCS(99))
	if c.NumCS() != aspeedsmc.VariantAST2500FMC.MaxSlaves {
		t.Fatalf("NumCS = %d, want clamp to %d", c.NumCS(), aspeedsmc.VariantAST2500FMC.MaxSlaves)
	}
}

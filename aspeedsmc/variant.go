package aspeedsmc

// Segment describes one chip-select's sub-window of the flash-window
// container: absolute base address and byte size. Size zero means
// disabled (2600 only).
type Segment struct {
	Addr uint32
	Size uint32
}

// Variant is the immutable per-controller-instance descriptor: register
// offsets, chip-select geometry, and the two segment-register encode/decode
// functions (spec.md §9: "a variant descriptor value... attached to each
// instance at construction. No runtime polymorphism across operations.").
type Variant struct {
	Name string

	// Register offsets; the AST2400 SPI1/SPI2 controllers use a
	// compressed layout with no CE_CTRL, SEG_ADDR or DMA registers.
	RegConf      uint32
	RegCECtrl    uint32 // 0xFFFFFFFF if absent (AST2400 SPIn)
	RegCtrl0     uint32
	RegTimings   uint32
	ConfEnableW0 uint

	MaxSlaves int
	Segments  []Segment

	FlashWindowBase uint32
	FlashWindowSize uint32

	HasDMA        bool
	DMAFlashMask  uint32
	DMADRAMMask   uint32

	EncodeSegment func(seg Segment) uint32
	DecodeSegment func(windowBase uint32, reg uint32) Segment

	// HasSegRegs is false for the legacy SMC, whose single fixed region
	// has no SEG_ADDR register at all.
	HasSegRegs bool

	// Is2500ImmutableEnd marks the two AST2500 SPI controllers, whose
	// last segment's end address is also read-only (spec.md §4.2.1 step
	// 3, resolved against index MaxSlaves-1 per spec.md §9's
	// off-by-one note).
	Is2500ImmutableEnd bool

	// FlashTypeStraps lists the chip-selects whose CONF flash-type field
	// is hard-strapped to SPI at reset (spec.md §4.2.4).
	FlashTypeStraps []int

	// Is4ByteBit reports whether fl's addressing is 32-bit, given the
	// controller's CE_CTRL (or, for the AST2400 SPI1 compressed layout,
	// CTRL0) register value.
	Is4ByteBit func(regCECtrlOrCtrl0 uint32, cs int) bool
}

const noRegister = 0xFFFFFFFF

// encodeSegmentAbsolute implements the AST2400/2500 encoder: 8 MiB units,
// absolute start/end addresses packed into SEG_ADDR's two byte fields.
func encodeSegmentAbsolute(seg Segment) uint32 {
	var reg uint32
	reg |= ((seg.Addr >> 23) & SegStartMask) << SegStartShift
	reg |= (((seg.Addr + seg.Size) >> 23) & SegEndMask) << SegEndShift
	return reg
}

func decodeSegmentAbsolute(_ uint32, reg uint32) Segment {
	addr := ((reg >> SegStartShift) & SegStartMask) << 23
	end := ((reg >> SegEndShift) & SegEndMask) << 23
	return Segment{Addr: addr, Size: end - addr}
}

// encodeSegmentOffset implements the AST2600 encoder: 1 MiB units, offsets
// relative to the flash window, with size==0 meaning disabled.
func encodeSegmentOffset(seg Segment) uint32 {
	if seg.Size == 0 {
		return 0
	}
	var reg uint32
	reg |= (seg.Addr & ast2600SegAddrMask) >> 16
	reg |= (seg.Addr + seg.Size - 1) & ast2600SegAddrMask
	return reg
}

func decodeSegmentOffset(windowBase uint32, reg uint32) Segment {
	startOffset := (reg << 16) & ast2600SegAddrMask
	endOffset := reg & ast2600SegAddrMask
	return Segment{Addr: windowBase + startOffset, Size: endOffset + 1<<20 - startOffset}
}

func is4ByteCECtrl(ceCtrl uint32, cs int) bool   { return ceCtrl&ceCtrlExtendedBit(cs) != 0 }
func is4ByteCtrl0Bit13(ctrl0 uint32, _ int) bool { return ctrl0&CtrlAST2400SPI4Byte != 0 }

const mib = 1 << 20

// VariantAST2400FMC: 5 chip-selects, 256 MiB window, DMA-capable.
var VariantAST2400FMC = Variant{
	Name:            "fmc-ast2400",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       5,
	Segments: []Segment{
		{0x20000000, 64 * mib},
		{0x24000000, 32 * mib},
		{0x26000000, 32 * mib},
		{0x28000000, 32 * mib},
		{0x2A000000, 32 * mib},
	},
	FlashWindowBase: 0x20000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          true,
	DMAFlashMask:    0x0FFFFFFC,
	DMADRAMMask:     0x1FFFFFFC,
	EncodeSegment:   encodeSegmentAbsolute,
	DecodeSegment:   decodeSegmentAbsolute,
	FlashTypeStraps: []int{0},
	Is4ByteBit:      is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2400SMC: legacy SMC, single region, no DMA, no segment/CE_CTRL
// registers of its own (max_slaves 5 retained from the original for
// read/write range checks even though only segment 0 is ever used by
// software in practice).
var VariantAST2400SMC = Variant{
	Name:            "smc-ast2400",
	RegConf:         RegConf,
	RegCECtrl:       noRegister,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       5,
	Segments:        []Segment{{0x10000000, 32 * mib}},
	FlashWindowBase: 0x10000000,
	FlashWindowSize: 0x6000000,
	HasDMA:          false,
	EncodeSegment:   encodeSegmentAbsolute,
	DecodeSegment:   decodeSegmentAbsolute,
	Is4ByteBit:      func(uint32, int) bool { return false },
	HasSegRegs:      false,
}

// VariantAST2400SPI1: compressed register layout, single chip-select.
var VariantAST2400SPI1 = Variant{
	Name:            "spi1-ast2400",
	RegConf:         RegSPIConf,
	RegCECtrl:       noRegister,
	RegCtrl0:        RegSPICtrl0,
	RegTimings:      RegSPITimings,
	ConfEnableW0:    0,
	MaxSlaves:       1,
	Segments:        []Segment{{0x30000000, 64 * mib}},
	FlashWindowBase: 0x30000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          false,
	EncodeSegment:   encodeSegmentAbsolute,
	DecodeSegment:   decodeSegmentAbsolute,
	Is4ByteBit:      is4ByteCtrl0Bit13,
	HasSegRegs:      false,
}

// VariantAST2500FMC: 3 chip-selects, 256 MiB window, DMA-capable.
var VariantAST2500FMC = Variant{
	Name:            "fmc-ast2500",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       3,
	Segments: []Segment{
		{0x20000000, 128 * mib},
		{0x28000000, 32 * mib},
		{0x2A000000, 32 * mib},
	},
	FlashWindowBase: 0x20000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          true,
	DMAFlashMask:    0x0FFFFFFC,
	DMADRAMMask:     0x3FFFFFFC,
	EncodeSegment:   encodeSegmentAbsolute,
	DecodeSegment:   decodeSegmentAbsolute,
	FlashTypeStraps: []int{0, 1},
	Is4ByteBit:      is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2500SPI1: 2 chip-selects, last segment's end is immutable.
var VariantAST2500SPI1 = Variant{
	Name:            "spi1-ast2500",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       2,
	Segments: []Segment{
		{0x30000000, 32 * mib},
		{0x32000000, 96 * mib},
	},
	FlashWindowBase:    0x30000000,
	FlashWindowSize:    0x8000000,
	HasDMA:             false,
	EncodeSegment:      encodeSegmentAbsolute,
	DecodeSegment:      decodeSegmentAbsolute,
	Is2500ImmutableEnd: true,
	Is4ByteBit:         is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2500SPI2: same shape as SPI1 at a different base.
var VariantAST2500SPI2 = Variant{
	Name:            "spi2-ast2500",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       2,
	Segments: []Segment{
		{0x38000000, 32 * mib},
		{0x3A000000, 96 * mib},
	},
	FlashWindowBase:    0x38000000,
	FlashWindowSize:    0x8000000,
	HasDMA:             false,
	EncodeSegment:      encodeSegmentAbsolute,
	DecodeSegment:      decodeSegmentAbsolute,
	Is2500ImmutableEnd: true,
	Is4ByteBit:         is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2600FMC: 3 chip-selects, 1 MiB segment units, offset encoding.
var VariantAST2600FMC = Variant{
	Name:            "fmc-ast2600",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       3,
	Segments: []Segment{
		{0x20000000, 128 * mib},
		{0x0, 0},
		{0x0, 0},
	},
	FlashWindowBase: 0x20000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          true,
	EncodeSegment:   encodeSegmentOffset,
	DecodeSegment:   decodeSegmentOffset,
	FlashTypeStraps: []int{0, 1, 2},
	Is4ByteBit:      is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2600SPI1.
var VariantAST2600SPI1 = Variant{
	Name:            "spi1-ast2600",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       2,
	Segments: []Segment{
		{0x30000000, 128 * mib},
		{0x0, 0},
	},
	FlashWindowBase: 0x30000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          false,
	EncodeSegment:   encodeSegmentOffset,
	DecodeSegment:   decodeSegmentOffset,
	Is4ByteBit:      is4ByteCECtrl,
	HasSegRegs:      true,
}

// VariantAST2600SPI2.
var VariantAST2600SPI2 = Variant{
	Name:            "spi2-ast2600",
	RegConf:         RegConf,
	RegCECtrl:       RegCECtrl,
	RegCtrl0:        RegCtrl0,
	RegTimings:      RegTimings,
	ConfEnableW0:    16,
	MaxSlaves:       3,
	Segments: []Segment{
		{0x50000000, 128 * mib},
		{0x0, 0},
		{0x0, 0},
	},
	FlashWindowBase: 0x50000000,
	FlashWindowSize: 0x10000000,
	HasDMA:          false,
	EncodeSegment:   encodeSegmentOffset,
	DecodeSegment:   decodeSegmentOffset,
	Is4ByteBit:      is4ByteCECtrl,
	HasSegRegs:      true,
}

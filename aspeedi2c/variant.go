package aspeedi2c

// Variant is the immutable per-SoC descriptor: bus count, register
// geometry and the pool-slicing function. Attached once at construction,
// never mutated — spec.md §9 asks for "a variant descriptor value...
// attached to each instance at construction. No runtime polymorphism
// across operations."
type Variant struct {
	Name string

	NumBusses int
	BusRegSize uint32
	// BusWindowOffset returns the byte offset of bus n's register window
	// within the controller's MMIO space. 2400 and 2500 both shift busses
	// 7-13 up by 5 extra slots, leaving a gap after bus 6 (spec.md §4.1's
	// "Gap before bus" column); only the 2600 is purely contiguous.
	BusWindowOffset func(busID int) uint32

	PoolBase uint32
	PoolSize uint32
	// PoolSlice returns the (offset, length) slice of the shared pool
	// buffer assigned to busID. For the 2400, offset is additionally a
	// function of the bus's own ctrl/pool_ctrl register contents, so this
	// takes the bus's current register values rather than being a pure
	// function of busID alone.
	PoolSlice func(busID int, ctrl, poolCtrl uint32) (offset, length uint32)

	// PerBusIRQ is true for the 2600 (one IRQ line per bus) and false for
	// 2400/2500 (one shared line, routed through the aggregate
	// intr_status register only).
	PerBusIRQ bool

	MMIOSize uint32
}

// busWindowOffsetContiguous builds a BusWindowOffset for the contiguous
// layout (2600): window n starts at windowStart + n*stride.
func busWindowOffsetContiguous(windowStart, stride uint32) func(int) uint32 {
	return func(busID int) uint32 {
		return windowStart + uint32(busID)*stride
	}
}

// gap7BusWindowOffset builds the shared AST2400/AST2500 bus-window
// addressing: 0x40 per bus, but busses 7-13 sit 5 slots further up, so
// bus 7 starts 6 slots after bus 6 instead of 1 while busses 7-13 stay
// one slot apart (spec.md §4.1, "Gap before bus" column: "busses 8-14
// shift by 5 slots instead of 1"). Both SoCs use the identical gap=7
// formula (original_source/hw/i2c/aspeed_i2c.c's pnum_to_addr, shared by
// aspeed_2400_i2c_class_init and aspeed_2500_i2c_class_init).
func gap7BusWindowOffset(busID int) uint32 {
	const (
		windowStart = 0x040
		stride      = 0x40
		gapSlots    = 5
	)
	if busID < 7 {
		return windowStart + uint32(busID)*stride
	}
	return windowStart + uint32(7)*stride + uint32(gapSlots)*stride + uint32(busID-7)*stride
}

func ast2400PoolSlice(_ int, ctrl, poolCtrl uint32) (uint32, uint32) {
	page := (ctrl >> 20) & 0x7
	offset := (poolCtrl & 0x3F) << 2
	return page*0x100 + offset, 0x100
}

func ast2500PoolSlice(busID int, _, _ uint32) (uint32, uint32) {
	const slot = 0x10
	return uint32(busID) * slot, slot
}

func ast2600PoolSlice(busID int, _, _ uint32) (uint32, uint32) {
	const slot = 0x20
	return uint32(busID) * slot, slot
}

// VariantAST2400 describes the AST2400 I²C controller: 14 busses, 2KiB pool.
var VariantAST2400 = Variant{
	Name:            "ast2400",
	NumBusses:       14,
	BusRegSize:      0x40,
	BusWindowOffset: gap7BusWindowOffset,
	PoolBase:        0x800,
	PoolSize:        0x800,
	PoolSlice:       ast2400PoolSlice,
	PerBusIRQ:       false,
	MMIOSize:        0x1000,
}

// VariantAST2500 describes the AST2500 I²C controller: 14 busses, 512B
// pool, addressed with the same gap-7 bus-window stride as the 2400. The
// pool sits at 0x800, past the widest possible bus-window extent.
var VariantAST2500 = Variant{
	Name:            "ast2500",
	NumBusses:       14,
	BusRegSize:      0x40,
	BusWindowOffset: gap7BusWindowOffset,
	PoolBase:        0x800,
	PoolSize:        0x200,
	PoolSlice:       ast2500PoolSlice,
	PerBusIRQ:       false,
	MMIOSize:        0x1000,
}

// VariantAST2600 describes the AST2600 I²C controller: 16 busses, 512B
// pool, per-bus IRQ lines.
var VariantAST2600 = Variant{
	Name:            "ast2600",
	NumBusses:       16,
	BusRegSize:      0x80,
	BusWindowOffset: busWindowOffsetContiguous(0x080, 0x80),
	PoolBase:        0xC00,
	PoolSize:        0x200,
	PoolSlice:       ast2600PoolSlice,
	PerBusIRQ:       true,
	MMIOSize:        0x1000,
}

// constants.go - register offsets, field masks and flash-opcode tables for
// the Aspeed SMC/FMC SPI flash controller.
//
// Follows the teacher's registers.go convention: one file documents the
// whole MMIO map and the bit masks are the contract, not an afterthought.
package aspeedsmc

// Register byte offsets, FMC/SMC layout (the AST2400 SPI1 controller uses
// a compressed layout — see Variant.RegConf etc. for the per-variant
// offsets actually dispatched on).
const (
	RegConf      = 0x00
	RegCECtrl    = 0x04
	RegIntrCtrl  = 0x08
	RegCtrl0     = 0x10
	RegSegAddr0  = 0x30
	RegMiscCtrl1 = 0x50
	RegDummyData = 0x54
	RegDMACtrl   = 0x80
	RegDMAFlash  = 0x84
	RegDMADRAM   = 0x88
	RegDMALen    = 0x8C
	RegDMACksum  = 0x90
	RegTimings   = 0x94
)

// AST2400 SPI1's compressed register layout (no segment/DMA registers).
const (
	RegSPIConf    = 0x00
	RegSPICtrl0   = 0x04
	RegSPIMisc    = 0x10
	RegSPITimings = 0x14
)

// CONF bits.
const (
	ConfLegacyDisable uint32 = 1 << 31
	ConfFlashTypeSPI  uint32 = 0x2
)

// ConfFlashTypeShift returns the bit position of CONF's 2-bit flash-type
// field for chip-select cs.
func ConfFlashTypeShift(cs int) uint { return uint(cs) * 2 }

// CE_CTRL: bit i selects 32-bit addressing for CSi.
func ceCtrlExtendedBit(cs int) uint32 { return 1 << uint(cs) }

// INTR_CTRL bits.
const (
	IntrCtrlDMAStatus          uint32 = 1 << 11
	IntrCtrlCmdAbortStatus     uint32 = 1 << 10
	IntrCtrlWriteProtectStatus uint32 = 1 << 9
	IntrCtrlDMAEn              uint32 = 1 << 3
	IntrCtrlCmdAbortEn         uint32 = 1 << 2
	IntrCtrlWriteProtectEn     uint32 = 1 << 1
)

// CTRL0 (and CTRL1..CTRL4, one per chip-select) bits.
const (
	CtrlIOQPI           uint32 = 1 << 31
	CtrlIOQuadData      uint32 = 1 << 30
	CtrlIODualData      uint32 = 1 << 29
	CtrlIODualAddrData  uint32 = 1 << 28 // includes dummies; aka QuadAddrData
	CtrlCmdShift               = 16
	CtrlCmdMask         uint32 = 0xFF
	CtrlDummyHighShift         = 14
	CtrlAST2400SPI4Byte uint32 = 1 << 13
	CtrlClockFreqShift         = 8
	CtrlClockFreqMask   uint32 = 0xF
	CtrlDummyLowShift          = 6
	CtrlCEStopActive    uint32 = 1 << 2
	CtrlCmdModeMask     uint32 = 0x3
)

// CTRL0 command-mode values (low 2 bits).
const (
	ModeRead = iota
	ModeFastRead
	ModeWrite
	ModeUser
)

// ClockFreq encodes an HCLK divisor (1-based) into CTRL0's clock-freq field.
func ClockFreq(div uint8) uint32 {
	return (uint32(div) & CtrlClockFreqMask) << CtrlClockFreqShift
}

// SEG_ADDR (2400/2500 absolute encoding) field layout.
const (
	SegEndShift   = 24
	SegEndMask    = 0xFF
	SegStartShift = 16
	SegStartMask  = 0xFF
)

// AST2600 offset-based SEG_ADDR mask.
const ast2600SegAddrMask = 0x0FF00000

// DMA_CTRL bits.
const (
	DMACtrlDelayMask  uint32 = 0xF
	DMACtrlDelayShift        = 8
	DMACtrlFreqMask   uint32 = 0xF
	DMACtrlFreqShift         = 4
	DMACtrlCalib      uint32 = 1 << 3
	DMACtrlCksum      uint32 = 1 << 2
	DMACtrlWrite      uint32 = 1 << 1
	DMACtrlEnable     uint32 = 1 << 0
)

const dmaLenMask = 0x01FFFFFC

// SPIOpRead is the default read-mode opcode when CTRL0 carries none.
const SPIOpRead = 0x03

// Snoop sentinel indices (spec.md §4.2.2).
const (
	snoopOff   = -1
	snoopStart = 0
)

// flashOpcode classifies an opcode into a dummy-byte count for the snoop
// recognizer (spec.md §4.2.2's "tiny recognizer"), lifted from the
// xilinx_spips-style opcode table the original SMC model borrows.
func flashOpcodeDummyBytes(op byte) int {
	switch op {
	case 0x03, 0x02, 0xA2, 0x32, 0x13, 0x12, 0x34: // READ, PP, DPP, QPP (+4B)
		return 0
	case 0x0B, 0x0C, 0x3B, 0x6B, 0x3C, 0x6C: // FAST_READ, DOR, QOR (+4B)
		return 1
	case 0xBB, 0xBC: // DIOR (+4B)
		return 2
	case 0xEB, 0xEC: // QIOR (+4B)
		return 4
	default:
		return -1
	}
}

// hclkDivisors maps a 4-bit FREQ field to a 1-based HCLK divisor, per the
// original model's reversed nibble table (HCLK/1 .. HCLK/16).
var hclkDivisors = [16]uint8{
	15, 7, 14, 6, 13, 5, 12, 4, 11, 3, 10, 2, 9, 1, 8, 0,
}

func hclkDivisor(freqMask uint8) uint8 {
	for i, v := range hclkDivisors {
		if v == freqMask {
			return uint8(i + 1)
		}
	}
	return 0
}

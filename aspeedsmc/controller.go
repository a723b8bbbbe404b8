// Package aspeedsmc implements the Aspeed AST2400/2500/2600 SMC/FMC SPI
// flash controller: one or more chip-selects mapped into a flash-window
// container, register-driven command dispatch (Read/Fast-Read/Write/User
// modes), a snoop-based dummy-cycle recognizer for User Mode reads, and an
// optional DMA engine (spec.md §4.2).
package aspeedsmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/aspeed-bmc/coredevices/aspeedlog"
	"github.com/aspeed-bmc/coredevices/busio"
	"github.com/aspeed-bmc/coredevices/iospace"
)

const stateVersion = 2

// regSpaceWords sizes the flat register backing store. It covers every
// offset any variant's registers or AST2400-SPI1's compressed layout can
// address (up to DMA_TIMINGS at 0x94), independent of variant — safer
// than copying the original model's per-variant nregs, several of which
// are undersized relative to what its own generic range checks permit.
const regSpaceWords = 0x100 / 4

// unimplementedReadSentinel is the −1 the register read policy returns for
// any offset outside the allow-list (spec.md §4.2, §8 property 10).
const unimplementedReadSentinel = 0xFFFFFFFF

func regIndex(offset uint32) int { return int(offset / 4) }

// csFlash holds one chip-select's container sub-region; the region's
// handler is that chip-select's Flash.
type csFlash struct {
	region *iospace.Region
}

// Controller is one SMC/FMC/legacy-SMC controller instance (spec.md §3's
// SC).
type Controller struct {
	variant Variant
	log     *aspeedlog.Channels

	mu   sync.Mutex
	regs []uint32

	numCS   int
	flashes []*csFlash
	csLines []busio.Line

	window *iospace.Container

	spi busio.SPIBus

	dram      iospace.AddressSpace
	sdramBase uint32

	irq busio.Line

	injectFailure    bool
	calibFailPending bool

	snoopIndex   int
	snoopDummies int
}

// Option configures a Controller at construction.
type Option func(*config)

type config struct {
	log           *aspeedlog.Channels
	spi           busio.SPIBus
	csLines       []busio.Line
	irq           busio.Line
	dram          iospace.AddressSpace
	sdramBase     uint32
	numCS         int
	injectFailure bool
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *aspeedlog.Channels) Option { return func(c *config) { c.log = l } }

// WithSPI attaches the outward byte-at-a-time SPI transport shared by
// every chip-select (spec.md §6).
func WithSPI(bus busio.SPIBus) Option { return func(c *config) { c.spi = bus } }

// WithCSLines attaches one chip-select Line per flash slot, indexed by cs.
func WithCSLines(lines []busio.Line) Option { return func(c *config) { c.csLines = lines } }

// WithIRQ attaches the controller's single interrupt line.
func WithIRQ(l busio.Line) Option { return func(c *config) { c.irq = l } }

// WithDRAM attaches the DRAM address space the DMA engine's non-flash
// side reads and writes.
func WithDRAM(as iospace.AddressSpace) Option { return func(c *config) { c.dram = as } }

// WithSDRAMBase sets the base address DMA_DRAM_ADDR is relative to.
func WithSDRAMBase(base uint32) Option { return func(c *config) { c.sdramBase = base } }

// WithNumCS overrides the variant's default chip-select count, clamped
// to the variant's MaxSlaves (spec.md §9 item 3: a board may wire up
// fewer chip-selects than the silicon supports).
func WithNumCS(n int) Option { return func(c *config) { c.numCS = n } }

// WithInjectFailure enables the test-only DMA calibration failure
// injection path (spec.md §4.2.3).
func WithInjectFailure(b bool) Option { return func(c *config) { c.injectFailure = b } }

func newController(v Variant, opts []Option) *Controller {
	cfg := config{log: aspeedlog.Default("aspeedsmc-" + v.Name), numCS: v.MaxSlaves}
	for _, o := range opts {
		o(&cfg)
	}

	numCS := cfg.numCS
	if numCS > v.MaxSlaves {
		cfg.log.GuestError.Printf("%s: requested %d chip-selects, clamping to %d", v.Name, numCS, v.MaxSlaves)
		numCS = v.MaxSlaves
	}
	if numCS < 1 {
		numCS = 1
	}

	c := &Controller{
		variant:       v,
		log:           cfg.log,
		regs:          make([]uint32, regSpaceWords),
		numCS:         numCS,
		csLines:       make([]busio.Line, numCS),
		spi:           cfg.spi,
		dram:          cfg.dram,
		sdramBase:     cfg.sdramBase,
		irq:           cfg.irq,
		injectFailure: cfg.injectFailure,
		snoopIndex:    snoopOff,
	}
	if c.spi == nil {
		c.spi = nopSPIBus{}
	}
	if c.dram == nil {
		c.dram = nopAddressSpace{}
	}
	if c.irq == nil {
		c.irq = busio.NopLine{}
	}
	for i := 0; i < numCS; i++ {
		if i < len(cfg.csLines) && cfg.csLines[i] != nil {
			c.csLines[i] = cfg.csLines[i]
		} else {
			c.csLines[i] = busio.NopLine{}
		}
	}

	c.window = iospace.NewContainer(v.FlashWindowSize, zeroReadHandler{})
	c.flashes = make([]*csFlash, numCS)
	for i := 0; i < numCS; i++ {
		f := &Flash{ctrl: c, cs: i}
		region := iospace.NewRegion(fmt.Sprintf("%s-cs%d", v.Name, i), f)
		c.flashes[i] = &csFlash{region: region}
		c.window.AddRegion(region)
	}

	c.Reset()
	return c
}

// NewFMCAST2400 constructs a 5-chip-select, DMA-capable AST2400 FMC controller.
func NewFMCAST2400(opts ...Option) *Controller { return newController(VariantAST2400FMC, opts) }

// NewSMCAST2400 constructs the legacy single-region AST2400 SMC controller.
func NewSMCAST2400(opts ...Option) *Controller { return newController(VariantAST2400SMC, opts) }

// NewSPI1AST2400 constructs the compressed-register single-chip-select
// AST2400 SPI1 controller.
func NewSPI1AST2400(opts ...Option) *Controller { return newController(VariantAST2400SPI1, opts) }

// NewFMCAST2500 constructs a 3-chip-select, DMA-capable AST2500 FMC controller.
func NewFMCAST2500(opts ...Option) *Controller { return newController(VariantAST2500FMC, opts) }

// NewSPI1AST2500 constructs the AST2500 SPI1 controller.
func NewSPI1AST2500(opts ...Option) *Controller { return newController(VariantAST2500SPI1, opts) }

// NewSPI2AST2500 constructs the AST2500 SPI2 controller.
func NewSPI2AST2500(opts ...Option) *Controller { return newController(VariantAST2500SPI2, opts) }

// NewFMCAST2600 constructs a 3-chip-select, DMA-capable AST2600 FMC controller.
func NewFMCAST2600(opts ...Option) *Controller { return newController(VariantAST2600FMC, opts) }

// NewSPI1AST2600 constructs the AST2600 SPI1 controller.
func NewSPI1AST2600(opts ...Option) *Controller { return newController(VariantAST2600SPI1, opts) }

// NewSPI2AST2600 constructs the AST2600 SPI2 controller.
func NewSPI2AST2600(opts ...Option) *Controller { return newController(VariantAST2600SPI2, opts) }

// Window returns the flash-window container, for attaching to a board's
// physical address space.
func (c *Controller) Window() *iospace.Container { return c.window }

// NumCS returns the number of chip-selects actually wired up (spec.md §9
// item 3: may be fewer than the variant's silicon maximum).
func (c *Controller) NumCS() int { return c.numCS }

type nopSPIBus struct{}

func (nopSPIBus) Transfer(byte) (byte, error) { return 0xFF, nil }

// nopAddressSpace is the default DRAM collaborator for controllers built
// without a board DRAM link attached: every access is a transport error,
// so an unconfigured DMA aborts its loop instead of silently succeeding.
type nopAddressSpace struct{}

func (nopAddressSpace) LoadU32LE(addr uint32) (uint32, error) {
	return 0, fmt.Errorf("aspeedsmc: dram_as not attached, load at %#x refused", addr)
}

func (nopAddressSpace) StoreU32LE(addr uint32, _ uint32) error {
	return fmt.Errorf("aspeedsmc: dram_as not attached, store at %#x refused", addr)
}

type zeroReadHandler struct{}

func (zeroReadHandler) ReadAt(uint32, int) uint32   { return 0 }
func (zeroReadHandler) WriteAt(uint32, int, uint32) {}

// isReadable reports whether offset is on the register read allow-list
// (spec.md §4.2's register read policy): everything else reads as
// unimplementedReadSentinel (0xFFFFFFFF) with an unimplemented-access log
// line, never a crash.
func (c *Controller) isReadable(offset uint32) bool {
	v := c.variant
	if offset == v.RegConf || offset == v.RegTimings {
		return true
	}
	if offset >= v.RegCtrl0 && offset < v.RegCtrl0+4*uint32(v.MaxSlaves) {
		return true
	}
	if v.RegCECtrl == noRegister {
		// Compressed AST2400-SPI1 layout: CONF/CTRL0/TIMINGS only.
		return false
	}
	if offset == v.RegCECtrl || offset == RegIntrCtrl || offset == RegDummyData {
		return true
	}
	if v.HasSegRegs && offset >= RegSegAddr0 && offset < RegSegAddr0+4*uint32(v.MaxSlaves) {
		return true
	}
	if v.HasDMA {
		switch offset {
		case RegDMACtrl, RegDMAFlash, RegDMADRAM, RegDMALen, RegDMACksum:
			return true
		}
	}
	return false
}

// Read32 services a 32-bit little-endian MMIO register read.
func (c *Controller) Read32(offset uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isReadable(offset) {
		c.log.Unimplemented.Printf("%s: read of unimplemented register %#x", c.variant.Name, offset)
		return unimplementedReadSentinel
	}
	return c.regs[regIndex(offset)]
}

// Write32 services a 32-bit little-endian MMIO register write.
func (c *Controller) Write32(offset uint32, value uint32) {
	c.mu.Lock()
	v := c.variant

	switch {
	case offset == v.RegConf, offset == v.RegTimings, offset == v.RegCECtrl && v.RegCECtrl != noRegister:
		c.regs[regIndex(offset)] = value

	case offset >= v.RegCtrl0 && offset < v.RegCtrl0+4*uint32(v.MaxSlaves):
		cs := int((offset - v.RegCtrl0) / 4)
		c.regs[regIndex(offset)] = value
		active := value&CtrlCEStopActive == 0
		if active {
			c.snoopIndex = snoopStart
		} else {
			c.snoopIndex = snoopOff
		}
		c.snoopDummies = 0
		c.mu.Unlock()
		if cs < c.numCS {
			c.csLines[cs].Set(active)
		}
		return

	case v.HasSegRegs && offset >= RegSegAddr0 && offset < RegSegAddr0+4*uint32(v.MaxSlaves):
		cs := int((offset - RegSegAddr0) / 4)
		committed := value
		if cs < c.numCS {
			committed = c.setSegment(cs, value)
		}
		c.regs[regIndex(offset)] = committed
		c.mu.Unlock()
		return

	case v.RegCECtrl != noRegister && offset == RegDummyData:
		c.regs[regIndex(offset)] = value & 0xFF

	case v.RegCECtrl != noRegister && offset == RegIntrCtrl:
		c.regs[regIndex(offset)] = value

	case v.HasDMA && offset == RegDMACtrl:
		c.mu.Unlock()
		c.handleDMACtrlWrite(value)
		return

	case v.HasDMA && offset == RegDMADRAM:
		c.regs[regIndex(offset)] = value & v.DMADRAMMask

	case v.HasDMA && offset == RegDMAFlash:
		c.regs[regIndex(offset)] = value & v.DMAFlashMask

	case v.HasDMA && offset == RegDMALen:
		c.regs[regIndex(offset)] = value & dmaLenMask

	default:
		c.log.Unimplemented.Printf("%s: write of unimplemented register %#x = %#x", v.Name, offset, value)
	}
	c.mu.Unlock()
}

// Reset restores every register, chip-select line and segment to
// power-on defaults (spec.md §4.2.4).
func (c *Controller) Reset() {
	c.mu.Lock()
	v := c.variant
	for i := range c.regs {
		c.regs[i] = 0
	}
	for _, cs := range v.FlashTypeStraps {
		if cs < c.numCS {
			c.regs[regIndex(v.RegConf)] |= ConfFlashTypeSPI << ConfFlashTypeShift(cs)
		}
	}
	c.snoopIndex = snoopOff
	c.snoopDummies = 0
	c.mu.Unlock()

	c.irq.Set(false)
	for i := 0; i < c.numCS; i++ {
		c.csLines[i].Set(false)
		// The legacy SMC lists a default segment for CS0 only; any
		// further chip-select gets an empty, disabled region.
		var seg Segment
		if i < len(v.Segments) {
			seg = v.Segments[i]
		}
		reg := v.EncodeSegment(seg)
		c.mu.Lock()
		if v.HasSegRegs {
			c.regs[regIndex(RegSegAddr0)+i] = reg
		}
		c.mu.Unlock()
		c.flashes[i].region.Transaction(func(r *iospace.Region) {
			r.SetGeometry(seg.Addr-v.FlashWindowBase, seg.Size)
			r.SetEnabled(seg.Size > 0)
		})
	}
}

// SaveState writes the persisted-state layout spec.md §6 names for the
// SC: the full register array plus the snoop recognizer's state, behind
// the same magic+version framing used by aspeedi2c.
func (c *Controller) SaveState(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(w, "ASMC"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(stateVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.regs))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.regs); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(c.snoopIndex)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, int32(c.snoopDummies))
}

// LoadState restores state previously written by SaveState.
func (c *Controller) LoadState(r io.Reader) error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return err
	}
	if string(magic) != "ASMC" {
		return fmt.Errorf("aspeedsmc: bad snapshot magic %q", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != stateVersion {
		return fmt.Errorf("aspeedsmc: unsupported snapshot version %d", version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var numRegs uint32
	if err := binary.Read(r, binary.LittleEndian, &numRegs); err != nil {
		return err
	}
	if int(numRegs) != len(c.regs) {
		return fmt.Errorf("aspeedsmc: register count mismatch: snapshot has %d, controller has %d", numRegs, len(c.regs))
	}
	if err := binary.Read(r, binary.LittleEndian, c.regs); err != nil {
		return err
	}
	var snoopIndex, snoopDummies int32
	if err := binary.Read(r, binary.LittleEndian, &snoopIndex); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &snoopDummies); err != nil {
		return err
	}
	c.snoopIndex = int(snoopIndex)
	c.snoopDummies = int(snoopDummies)
	return nil
}

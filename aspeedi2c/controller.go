// Package aspeedi2c implements the Aspeed AST2400/2500/2600 I²C
// multi-bus controller: N logical busses sharing one pool buffer and one
// MMIO window, each running the master-mode START/TX/RX/STOP state
// machine described in spec.md §4.1.
package aspeedi2c

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/aspeed-bmc/coredevices/aspeedlog"
	"github.com/aspeed-bmc/coredevices/busio"
)

const stateVersion = 2

// Controller is one I²C multi-bus controller instance (spec.md §3's IC).
type Controller struct {
	variant Variant
	log     *aspeedlog.Channels

	mu           sync.Mutex
	intrStatus   uint32
	busActive    []bool // per-bus aggregate bit, mirrors intrStatus
	aggregateIRQ busio.Line

	pool []byte

	busses []*Bus
}

// Option configures a Controller at construction.
type Option func(*config)

type config struct {
	log       *aspeedlog.Channels
	aggregate busio.Line
	perBusIRQ []busio.Line
	links     []busio.I2CBus
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *aspeedlog.Channels) Option { return func(c *config) { c.log = l } }

// WithAggregateIRQ attaches the single combined IRQ line used by
// 2400/2500 variants.
func WithAggregateIRQ(l busio.Line) Option { return func(c *config) { c.aggregate = l } }

// WithPerBusIRQ attaches per-bus IRQ lines, indexed by bus id, used by the
// 2600 variant.
func WithPerBusIRQ(lines []busio.Line) Option { return func(c *config) { c.perBusIRQ = lines } }

// WithBusLink attaches an I²C bus collaborator to busID ahead of
// construction (board assembly time). GetBus can also be used afterward
// to attach one post-construction.
func WithBusLink(busID int, link busio.I2CBus) Option {
	return func(c *config) {
		for len(c.links) <= busID {
			c.links = append(c.links, nil)
		}
		c.links[busID] = link
	}
}

func newController(v Variant, opts []Option) *Controller {
	cfg := config{log: aspeedlog.Default("aspeedi2c-" + v.Name)}
	for _, o := range opts {
		o(&cfg)
	}

	c := &Controller{
		variant:      v,
		log:          cfg.log,
		pool:         make([]byte, v.PoolSize),
		busActive:    make([]bool, v.NumBusses),
		aggregateIRQ: cfg.aggregate,
	}
	if c.aggregateIRQ == nil {
		c.aggregateIRQ = busio.NopLine{}
	}

	c.busses = make([]*Bus, v.NumBusses)
	for i := 0; i < v.NumBusses; i++ {
		var link busio.I2CBus
		if i < len(cfg.links) {
			link = cfg.links[i]
		}
		var irq busio.Line
		if v.PerBusIRQ && i < len(cfg.perBusIRQ) {
			irq = cfg.perBusIRQ[i]
		}
		c.busses[i] = newBus(i, &c.pool, link, irq, cfg.log, c.setBusAggregate)
	}
	return c
}

// NewAST2400 constructs a 14-bus, 2KiB-pool AST2400 I²C controller.
func NewAST2400(opts ...Option) *Controller { return newController(VariantAST2400, opts) }

// NewAST2500 constructs a 14-bus, 512B-pool AST2500 I²C controller.
func NewAST2500(opts ...Option) *Controller { return newController(VariantAST2500, opts) }

// NewAST2600 constructs a 16-bus, 512B-pool, per-bus-IRQ AST2600 I²C controller.
func NewAST2600(opts ...Option) *Controller { return newController(VariantAST2600, opts) }

// GetBus returns busNr's I²C bus state, for attaching slave models after
// construction (spec.md §6: "get_bus(controller, busnr) -> I²C bus").
// AttachLink rewires the bus's outward collaborator.
func (c *Controller) GetBus(busNr int) *Bus { return c.busses[busNr] }

// AttachLink rewires busNr's outward I²C collaborator.
func (b *Bus) AttachLink(link busio.I2CBus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if link == nil {
		link = noopI2CBus{}
	}
	b.link = link
}

// setBusAggregate implements spec.md §4.1's aggregation rule:
// IC.intr_status bit i == (bus[i].intr_status & bus[i].intr_ctrl) != 0,
// updated atomically with respect to readers.
func (c *Controller) setBusAggregate(busID int, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busActive[busID] = active
	if active {
		c.intrStatus |= 1 << uint(busID)
	} else {
		c.intrStatus &^= 1 << uint(busID)
	}
	c.aggregateIRQ.Set(c.intrStatus != 0)
}

// IntrStatus returns the global I2C_CTRL_STATUS register value.
func (c *Controller) IntrStatus() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intrStatus
}

// Reset restores every bus and the shared pool to power-on defaults
// (spec.md §3: "all state is process-lived, zeroed at device reset").
func (c *Controller) Reset() {
	c.mu.Lock()
	c.intrStatus = 0
	for i := range c.busActive {
		c.busActive[i] = false
	}
	for i := range c.pool {
		c.pool[i] = 0
	}
	c.mu.Unlock()
	c.aggregateIRQ.Set(false)
	for _, b := range c.busses {
		b.Reset()
	}
}

// decode maps an absolute MMIO offset within the controller's window to
// either the global register, a bus register, or the pool buffer.
type decoded struct {
	kind      int // 0 = global, 1 = bus reg, 2 = pool
	busID     int
	regOffset uint32
	poolOff   uint32
}

const (
	kindGlobal = iota
	kindBusReg
	kindPool
	kindReserved
)

func (c *Controller) decode(addr uint32) decoded {
	if addr == RegGlobalCtrlStatus {
		return decoded{kind: kindGlobal}
	}
	if addr >= c.variant.PoolBase && addr < c.variant.PoolBase+c.variant.PoolSize {
		return decoded{kind: kindPool, poolOff: addr - c.variant.PoolBase}
	}
	for i := 0; i < c.variant.NumBusses; i++ {
		start := c.variant.BusWindowOffset(i)
		if addr >= start && addr < start+c.variant.BusRegSize {
			return decoded{kind: kindBusReg, busID: i, regOffset: addr - start}
		}
	}
	return decoded{kind: kindReserved}
}

// Read32 services a 32-bit little-endian MMIO read at addr (an offset
// within the controller's MMIO window).
func (c *Controller) Read32(addr uint32) uint32 {
	d := c.decode(addr)
	switch d.kind {
	case kindGlobal:
		return c.IntrStatus()
	case kindBusReg:
		return c.busses[d.busID].ReadReg(d.regOffset)
	case kindPool:
		return c.readPool(d.poolOff, 4)
	default:
		c.log.Unimplemented.Printf("read of reserved offset %#x", addr)
		return 0
	}
}

// Write32 services a 32-bit little-endian MMIO write at addr.
func (c *Controller) Write32(addr uint32, value uint32) {
	d := c.decode(addr)
	switch d.kind {
	case kindGlobal:
		c.log.GuestError.Printf("write to I2C_CTRL_STATUS (read-only) ignored: %#x", value)
	case kindBusReg:
		c.busses[d.busID].WriteReg(d.regOffset, value, c.variant.PoolSlice)
	case kindPool:
		c.writePool(d.poolOff, 4, value)
	default:
		c.log.Unimplemented.Printf("write of reserved offset %#x", addr)
	}
}

func (c *Controller) readPool(off uint32, size int) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var v uint32
	for i := 0; i < size; i++ {
		idx := off + uint32(i)
		if int(idx) >= len(c.pool) {
			break
		}
		v |= uint32(c.pool[idx]) << (8 * i)
	}
	return v
}

func (c *Controller) writePool(off uint32, size int, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < size; i++ {
		idx := off + uint32(i)
		if int(idx) >= len(c.pool) {
			break
		}
		c.pool[idx] = byte(value >> (8 * i))
	}
}

// SaveState writes the persisted-state layout spec.md §6 names: per-bus
// id/ctrl/timing/intr_ctrl/intr_status/cmd/buf/pool_ctrl, plus the
// controller-level intr_status and the full pool, all behind a
// magic+version header in the style of the teacher's debug_snapshot.go.
func (c *Controller) SaveState(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(w, "AI2C"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(stateVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.intrStatus); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.busses))); err != nil {
		return err
	}
	for _, b := range c.busses {
		b.mu.Lock()
		fields := []uint32{
			uint32(b.id), b.ctrl, b.timing[0], b.timing[1],
			b.intrCtrl, b.intrSts, b.cmd,
			uint32(b.bufRX)<<8 | uint32(b.bufTX), b.poolCtrl,
		}
		b.mu.Unlock()
		for _, f := range fields {
			if err := binary.Write(w, binary.LittleEndian, f); err != nil {
				return err
			}
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.pool))); err != nil {
		return err
	}
	_, err := w.Write(c.pool)
	return err
}

// LoadState restores state previously written by SaveState.
func (c *Controller) LoadState(r io.Reader) error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return err
	}
	if string(magic) != "AI2C" {
		return fmt.Errorf("aspeedi2c: bad snapshot magic %q", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != stateVersion {
		return fmt.Errorf("aspeedi2c: unsupported snapshot version %d", version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := binary.Read(r, binary.LittleEndian, &c.intrStatus); err != nil {
		return err
	}
	var numBusses uint32
	if err := binary.Read(r, binary.LittleEndian, &numBusses); err != nil {
		return err
	}
	if int(numBusses) != len(c.busses) {
		return fmt.Errorf("aspeedi2c: bus count mismatch: snapshot has %d, controller has %d", numBusses, len(c.busses))
	}
	for _, b := range c.busses {
		var id, ctrl, t0, t1, intrCtrl, intrSts, cmd, buf, poolCtrl uint32
		for _, f := range []*uint32{&id, &ctrl, &t0, &t1, &intrCtrl, &intrSts, &cmd, &buf, &poolCtrl} {
			if err := binary.Read(r, binary.LittleEndian, f); err != nil {
				return err
			}
		}
		b.mu.Lock()
		b.ctrl, b.timing[0], b.timing[1] = ctrl, t0, t1
		b.intrCtrl, b.intrSts, b.cmd = intrCtrl, intrSts, cmd
		b.bufRX, b.bufTX = uint8(buf>>8), uint8(buf)
		b.poolCtrl = poolCtrl
		b.mu.Unlock()
	}
	var poolLen uint32
	if err := binary.Read(r, binary.LittleEndian, &poolLen); err != nil {
		return err
	}
	if int(poolLen) != len(c.pool) {
		return fmt.Errorf("aspeedi2c: pool size mismatch: snapshot has %d, controller has %d", poolLen, len(c.pool))
	}
	_, err := io.ReadFull(r, c.pool)
	return err
}

package aspeedsmc

// Flash implements iospace.Handler for one chip-select's sub-region of
// the flash-window container (spec.md §4.2.2). It carries a back-pointer
// to its controller rather than its own copy of shared state (spec.md
// §9's "indexed ownership" note). The attached flash device's content
// lives entirely on the far side of the outward SPI bus (c.spi); the
// controller holds no content of its own — DMA reads the same window
// through the normal Read/Fast-Read MMIO path (see windowAS in
// dma.go), exactly as a CPU load would.
type Flash struct {
	ctrl *Controller
	cs   int
}

func (c *Controller) ctrl0Locked(cs int) uint32 {
	return c.regs[regIndex(c.variant.RegCtrl0)+cs]
}

func (c *Controller) confLocked() uint32 {
	return c.regs[regIndex(c.variant.RegConf)]
}

func (c *Controller) is4ByteLocked(cs int) bool {
	v := c.variant
	if v.RegCECtrl == noRegister {
		return v.Is4ByteBit(c.ctrl0Locked(cs), cs)
	}
	return v.Is4ByteBit(c.regs[regIndex(v.RegCECtrl)], cs)
}

func (c *Controller) addrWidthLocked(cs int) int {
	if c.is4ByteLocked(cs) {
		return 4
	}
	return 3
}

// checkSegmentAddr reduces offset modulo the chip-select's current
// segment size (spec.md §4.2.2's address-bounds rule), logging if it
// wrapped.
func (f *Flash) checkSegmentAddr(offset uint32) uint32 {
	_, size, _ := f.ctrl.flashes[f.cs].region.Geometry()
	if size == 0 {
		return offset
	}
	wrapped := offset % size
	if wrapped != offset {
		f.ctrl.log.GuestError.Printf("%s: cs%d: address %#x wrapped to %#x (segment size %#x)", f.ctrl.variant.Name, f.cs, offset, wrapped, size)
	}
	return wrapped
}

// flashSelect/flashUnselect drive the CSi line for the duration of an
// auto-mode (Read/Fast-Read/Write) access, independent of the
// software-managed CE_STOP_ACTIVE bit that gates User Mode (spec.md
// §4.2.2: "the model auto-asserts CS... then de-asserts CS").
func (f *Flash) flashSelect()   { f.ctrl.csLines[f.cs].Set(true) }
func (f *Flash) flashUnselect() { f.ctrl.csLines[f.cs].Set(false) }

// setupAddress emits the command byte and the 24- or 32-bit address
// (spec.md §4.2.2), returning the dummy byte count to inject afterward
// (0 outside Fast-Read mode).
func (f *Flash) setupAddress(mode int, addr uint32) int {
	c := f.ctrl
	c.mu.Lock()
	ctrl0 := c.ctrl0Locked(f.cs)
	addrWidth := c.addrWidthLocked(f.cs)
	cmd := byte((ctrl0 >> CtrlCmdShift) & CtrlCmdMask)
	if cmd == 0 && mode == ModeRead {
		cmd = SPIOpRead
	}
	var dummies int
	if mode == ModeFastRead {
		high := (ctrl0 >> 14) & 1
		low := (ctrl0 >> CtrlDummyLowShift) & 0x3
		val := (high << 2) | low
		dummies = int(val)
		if ctrl0&CtrlIODualAddrData != 0 {
			dummies /= 2
		}
	}
	c.mu.Unlock()

	c.spi.Transfer(cmd)
	for i := addrWidth - 1; i >= 0; i-- {
		c.spi.Transfer(byte(addr >> (8 * uint(i))))
	}
	return dummies
}

// ReadAt implements auto-mode (Read/Fast-Read) and User Mode flash
// reads. Write Mode reads back zero with a guest-error log: it is a
// write-only command mode.
func (f *Flash) ReadAt(offset uint32, size int) uint32 {
	c := f.ctrl
	c.mu.Lock()
	mode := int(c.ctrl0Locked(f.cs) & CtrlCmdModeMask)
	c.mu.Unlock()

	switch mode {
	case ModeUser:
		var v uint32
		for i := 0; i < size; i++ {
			b, _ := c.spi.Transfer(0)
			v |= uint32(b) << (8 * uint(i))
		}
		return v

	case ModeRead, ModeFastRead:
		addr := f.checkSegmentAddr(offset)
		f.flashSelect()
		dummies := f.setupAddress(mode, addr)
		for i := 0; i < dummies; i++ {
			c.spi.Transfer(0)
		}
		var v uint32
		for i := 0; i < size; i++ {
			b, _ := c.spi.Transfer(0)
			v |= uint32(b) << (8 * uint(i))
		}
		f.flashUnselect()
		return v

	default:
		c.log.GuestError.Printf("%s: cs%d: read in write mode ignored", c.variant.Name, f.cs)
		return 0
	}
}

// WriteAt implements User Mode (with snoop gating) and auto Write Mode
// flash writes. Read/Fast-Read are read-only command modes.
func (f *Flash) WriteAt(offset uint32, size int, value uint32) {
	c := f.ctrl
	c.mu.Lock()
	mode := int(c.ctrl0Locked(f.cs) & CtrlCmdModeMask)
	c.mu.Unlock()

	switch mode {
	case ModeUser:
		f.userWrite(size, value)

	case ModeWrite:
		c.mu.Lock()
		writeEnabled := c.confLocked()&(1<<(c.variant.ConfEnableW0+uint(f.cs))) != 0
		c.mu.Unlock()
		if !writeEnabled {
			c.log.GuestError.Printf("%s: cs%d: write mode access with write-enable clear, dropped", c.variant.Name, f.cs)
			return
		}
		addr := f.checkSegmentAddr(offset)
		f.flashSelect()
		f.setupAddress(mode, addr)
		for i := 0; i < size; i++ {
			c.spi.Transfer(byte(value >> (8 * uint(i))))
		}
		f.flashUnselect()

	default:
		c.log.GuestError.Printf("%s: cs%d: write in read mode ignored", c.variant.Name, f.cs)
	}
}

// userWrite implements the snoop-gated User Mode write path (spec.md
// §4.2.2). Per spec.md §9's resolution of the multi-byte open question,
// the whole access counts as one snoop step: snoop_index advances by
// size and the opcode is sampled from the low byte of the first write.
func (f *Flash) userWrite(size int, value uint32) {
	c := f.ctrl
	raw := make([]byte, size)
	for i := 0; i < size; i++ {
		raw[i] = byte(value >> (8 * uint(i)))
	}

	c.mu.Lock()
	out := raw
	addrWidth := c.addrWidthLocked(f.cs)
	if c.snoopIndex != snoopOff {
		if c.snoopIndex == snoopStart {
			dummies := flashOpcodeDummyBytes(raw[0])
			if dummies <= 0 {
				if dummies < 0 {
					c.log.Unimplemented.Printf("%s: cs%d: unrecognized snoop opcode %#x", c.variant.Name, f.cs, raw[0])
				}
				c.snoopIndex = snoopOff
			} else {
				c.snoopDummies = dummies
			}
		}
		if c.snoopIndex != snoopOff {
			if c.snoopIndex >= addrWidth+1 && c.snoopDummies > 0 {
				dd := byte(c.regs[regIndex(RegDummyData)])
				subst := make([]byte, size)
				for i := range subst {
					subst[i] = dd
				}
				out = subst
				c.snoopDummies -= size
				if c.snoopDummies <= 0 {
					c.snoopDummies = 0
					c.snoopIndex = snoopOff
				} else {
					c.snoopIndex += size
				}
			} else {
				c.snoopIndex += size
			}
		}
	}
	c.mu.Unlock()

	for _, b := range out {
		c.spi.Transfer(b)
	}
}

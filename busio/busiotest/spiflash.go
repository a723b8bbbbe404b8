package busiotest

// FakeSPIFlash is a minimal emulated SPI NOR flash: just enough of
// READ/FAST_READ/PAGE_PROGRAM/RDID to drive the aspeedsmc controller's
// state machine in tests. It is not the flash model spec.md §1 explicitly
// treats as an external collaborator; it exists purely so this module's
// own tests don't need one.
type FakeSPIFlash struct {
	Content []byte

	selected bool
	phase    int
	opcode   byte
	addr     uint32
	addrLen  int
	dummy    int
	rdidIdx  int
}

// NewFakeSPIFlash creates a flash pre-loaded with content.
func NewFakeSPIFlash(content []byte) *FakeSPIFlash {
	return &FakeSPIFlash{Content: content}
}

// Set implements busio.Line: the controller's chip-select output.
func (f *FakeSPIFlash) Set(asserted bool) {
	// CS is active-low at the pin; callers pass the logical "selected"
	// state (see busio.Line), so asserted == true means selected.
	f.selected = asserted
	if asserted {
		f.phase = 0
		f.addr = 0
		f.addrLen = 0
		f.dummy = 0
	}
}

const (
	opRead     = 0x03
	opFastRead = 0x0B
	opPP       = 0x02
	opRDID     = 0x9F
)

// Transfer implements busio.SPIBus.
func (f *FakeSPIFlash) Transfer(out byte) (byte, error) {
	if !f.selected {
		return 0xFF, nil
	}
	switch f.phase {
	case 0:
		f.opcode = out
		f.phase = 1
		switch f.opcode {
		case opRead, opFastRead, opPP:
			f.addrLen = 3
		case opRDID:
			f.addrLen = 0
			f.rdidIdx = 0
		default:
			f.addrLen = 0
		}
		return 0xFF, nil
	}
	if f.addrLen > 0 {
		f.addr = (f.addr << 8) | uint32(out)
		f.addrLen--
		if f.addrLen == 0 && f.opcode == opFastRead {
			f.dummy = 1
		}
		return 0xFF, nil
	}
	if f.dummy > 0 {
		f.dummy--
		return 0xFF, nil
	}
	switch f.opcode {
	case opRead, opFastRead:
		var v byte
		if int(f.addr) < len(f.Content) {
			v = f.Content[f.addr]
		}
		f.addr++
		return v, nil
	case opPP:
		if int(f.addr) < len(f.Content) {
			f.Content[f.addr] = out
		}
		f.addr++
		return 0xFF, nil
	case opRDID:
		ids := [3]byte{0xEF, 0x40, 0x18} // a plausible Winbond-style RDID triplet
		v := ids[f.rdidIdx%len(ids)]
		f.rdidIdx++
		return v, nil
	default:
		return 0xFF, nil
	}
}

package aspeedsmc

import "github.com/aspeed-bmc/coredevices/iospace"

// setSegment runs the seven-step segment-update procedure (spec.md
// §4.2.1). cs is the chip-select index, newReg the raw register value the
// guest wrote to SEG_ADDRcs. It returns the register value actually
// committed (which may differ from newReg if a clamp fired).
func (c *Controller) setSegment(cs int, newReg uint32) uint32 {
	v := c.variant
	seg := v.DecodeSegment(v.FlashWindowBase, newReg)

	// Step 2: CS0's start address is read-only.
	if cs == 0 && seg.Addr != v.FlashWindowBase {
		c.log.GuestError.Printf("%s: tried to change CS0 start address to %#x", v.Name, seg.Addr)
		seg.Addr = v.FlashWindowBase
		newReg = v.EncodeSegment(seg)
	}

	// Step 3: for the two 2500 SPI variants, the last segment's end is
	// also read-only. spec.md §9 resolves the source's off-by-one
	// (max_slaves) against the last valid index, max_slaves-1.
	if v.Is2500ImmutableEnd && cs == v.MaxSlaves-1 {
		def := v.Segments[cs]
		if seg.Addr+seg.Size != def.Addr+def.Size {
			c.log.GuestError.Printf("%s: tried to change CS%d end address to %#x", v.Name, cs, seg.Addr+seg.Size)
			seg.Size = def.Addr + def.Size - seg.Addr
			newReg = v.EncodeSegment(seg)
		}
	}

	// Step 4: keep the segment inside the flash window.
	if seg.Addr+seg.Size <= v.FlashWindowBase || seg.Addr > v.FlashWindowBase+v.FlashWindowSize {
		c.log.GuestError.Printf("%s: new segment for CS%d is invalid: [%#x-%#x]", v.Name, cs, seg.Addr, seg.Addr+seg.Size)
		return c.regs[regIndex(RegSegAddr0)+cs]
	}

	// Step 5: alignment is advisory.
	if seg.Size != 0 && seg.Addr%seg.Size != 0 {
		c.log.GuestError.Printf("%s: new segment for CS%d is not aligned: [%#x-%#x]", v.Name, cs, seg.Addr, seg.Addr+seg.Size)
	}

	// Step 6: overlap with any other segment is advisory.
	c.checkOverlap(cs, seg)

	// Step 7: atomically resize, relocate and enable the CS sub-region.
	region := c.flashes[cs].region
	region.Transaction(func(r *iospace.Region) {
		r.SetGeometry(seg.Addr-v.FlashWindowBase, seg.Size)
		r.SetEnabled(seg.Size > 0)
	})

	return newReg
}

func (c *Controller) checkOverlap(cs int, seg Segment) {
	v := c.variant
	for i := 0; i < v.MaxSlaves; i++ {
		if i == cs {
			continue
		}
		other := v.DecodeSegment(v.FlashWindowBase, c.regs[regIndex(RegSegAddr0)+i])
		if seg.Addr+seg.Size > other.Addr && seg.Addr < other.Addr+other.Size {
			c.log.GuestError.Printf("%s: new segment CS%d [%#x-%#x] overlaps with CS%d [%#x-%#x]",
				v.Name, cs, seg.Addr, seg.Addr+seg.Size, i, other.Addr, other.Addr+other.Size)
			return
		}
	}
}

// repl.go implements a raw-mode line-editing REPL for poking IC/SC
// registers by hand, the direct analogue of a QEMU monitor session for
// this pair of devices. Grounded on terminal_host.go's raw-mode byte
// loop (CR becomes LF, DEL becomes BS) — but reads happen synchronously
// on the REPL's own goroutine, one command at a time, instead of feeding
// bytes into an MMIO device out of band.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// device is the subset of (*aspeedi2c.Controller) and
// (*aspeedsmc.Controller) the REPL drives; both satisfy it structurally.
type device interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
	Reset()
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// REPL serves register commands against a named set of devices.
type REPL struct {
	devices map[string]device
	order   []string
}

// NewREPL creates an empty REPL.
func NewREPL() *REPL {
	return &REPL{devices: map[string]device{}}
}

// Attach registers a device under name (e.g. "i2c", "smc").
func (r *REPL) Attach(name string, d device) {
	r.devices[name] = d
	r.order = append(r.order, name)
}

// Run puts stdin in raw mode and serves commands until "quit", Ctrl-C, or
// EOF.
func (r *REPL) Run() error {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("aspeedmon: failed to set raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	fmt.Print("aspeedmon> ")
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			if err == io.EOF || err == nil {
				fmt.Print("\r\n")
				return nil
			}
			return err
		}
		b := buf[0]
		if b == '\r' {
			b = '\n'
		}
		if b == 0x7F {
			b = 0x08
		}
		switch b {
		case '\n':
			fmt.Print("\r\n")
			cmd := string(line)
			line = line[:0]
			if r.dispatch(cmd) {
				return nil
			}
			fmt.Print("aspeedmon> ")
		case 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Print("\b \b")
			}
		case 0x03: // Ctrl-C
			fmt.Print("\r\n")
			return nil
		default:
			line = append(line, b)
			fmt.Printf("%c", b)
		}
	}
}

// dispatch executes one command line and reports whether the REPL should
// exit.
func (r *REPL) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "help":
		r.printHelp()

	case "reset":
		d, ok := r.deviceArg(fields, 2)
		if !ok {
			return false
		}
		d.Reset()
		fmt.Print("ok\r\n")

	case "r":
		d, ok := r.deviceArg(fields, 3)
		if !ok {
			return false
		}
		off, err := parseHex(fields[2])
		if err != nil {
			fmt.Printf("bad offset %q: %v\r\n", fields[2], err)
			return false
		}
		fmt.Printf("%#010x\r\n", d.Read32(uint32(off)))

	case "w":
		d, ok := r.deviceArg(fields, 4)
		if !ok {
			return false
		}
		off, err := parseHex(fields[2])
		if err != nil {
			fmt.Printf("bad offset %q: %v\r\n", fields[2], err)
			return false
		}
		val, err := parseHex(fields[3])
		if err != nil {
			fmt.Printf("bad value %q: %v\r\n", fields[3], err)
			return false
		}
		d.Write32(uint32(off), uint32(val))
		fmt.Print("ok\r\n")

	case "save":
		d, ok := r.deviceArg(fields, 3)
		if !ok {
			return false
		}
		f, err := os.Create(fields[2])
		if err != nil {
			fmt.Printf("create: %v\r\n", err)
			return false
		}
		defer f.Close()
		if err := d.SaveState(f); err != nil {
			fmt.Printf("save: %v\r\n", err)
			return false
		}
		fmt.Print("ok\r\n")

	case "load":
		d, ok := r.deviceArg(fields, 3)
		if !ok {
			return false
		}
		f, err := os.Open(fields[2])
		if err != nil {
			fmt.Printf("open: %v\r\n", err)
			return false
		}
		defer f.Close()
		if err := d.LoadState(f); err != nil {
			fmt.Printf("load: %v\r\n", err)
			return false
		}
		fmt.Print("ok\r\n")

	default:
		fmt.Printf("unknown command %q (try \"help\")\r\n", fields[0])
	}
	return false
}

// deviceArg resolves fields[1] to an attached device, reporting a usage
// or unknown-device error if fields doesn't have wantLen entries or names
// a device that isn't attached.
func (r *REPL) deviceArg(fields []string, wantLen int) (device, bool) {
	if len(fields) != wantLen {
		fmt.Printf("usage: %s <device> ...\r\n", fields[0])
		return nil, false
	}
	d, ok := r.devices[fields[1]]
	if !ok {
		fmt.Printf("unknown device %q (try: %s)\r\n", fields[1], strings.Join(r.order, ", "))
		return nil, false
	}
	return d, true
}

func parseHex(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 32)
}

func (r *REPL) printHelp() {
	fmt.Print("devices: " + strings.Join(r.order, ", ") + "\r\n")
	fmt.Print("  r <device> <offset>          read a 32-bit register\r\n")
	fmt.Print("  w <device> <offset> <value>  write a 32-bit register\r\n")
	fmt.Print("  reset <device>               reset a device\r\n")
	fmt.Print("  save <device> <file>         snapshot a device to file\r\n")
	fmt.Print("  load <device> <file>         restore a device from file\r\n")
	fmt.Print("  quit                         exit\r\n")
}

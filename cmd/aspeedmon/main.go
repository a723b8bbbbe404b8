// Command aspeedmon is an interactive register monitor for the aspeedi2c
// and aspeedsmc controllers: a minimal board is assembled in-process and
// a raw-mode REPL attaches to it, the same way a QEMU monitor session
// attaches to a running machine.
package main

import "fmt"

func main() {
	fmt.Print("aspeedmon -- Aspeed BMC coredevices register monitor\r\n")
	fmt.Print("type \"help\" for commands, \"quit\" to exit\r\n\r\n")

	board := NewBoard()
	repl := NewREPL()
	repl.Attach("i2c", board.I2C)
	repl.Attach("smc", board.SMC)

	if err := repl.Run(); err != nil {
		fmt.Printf("aspeedmon: %v\r\n", err)
	}
}

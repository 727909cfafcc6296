// Command computedemo runs end-to-end compute scenarios on a chosen backend.
//
// Usage:
//
//	computedemo run [--backend software] [--scenario chain] [--elements 4096]
//	computedemo backends
package main

import (
	"os"

	"github.com/gogpu/compute/cmd/computedemo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

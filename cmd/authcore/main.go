// Command authcore runs the authentication service and its maintenance
// subcommands.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command tavern drives the session and invite engine from a terminal and
// runs its local HTTP companion server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

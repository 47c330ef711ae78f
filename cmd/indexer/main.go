// Command indexer builds, stages and inspects index generations, and asks
// running searchers to switch to them.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

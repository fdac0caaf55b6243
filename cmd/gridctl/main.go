// Command gridctl drives grid data endpoints from the command line: it
// fetches pages, compiles filter-builder criteria, deletes rows and exports
// CSV.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

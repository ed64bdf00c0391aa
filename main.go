// Lattice - typed relationship graph and permission engine.
//
// Lattice stores short-coded, typed edges between domain entities and
// resolves whether an actor may currently perform an action against a
// target, including approval workflows derived from edge history.
package main

import (
	"fmt"
	"os"

	"github.com/latticehq/lattice/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

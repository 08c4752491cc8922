// Command kernelctl is the demo CLI surface described in spec.md §6: it
// creates an identity transform, persists a fixed input, runs a one-node
// graph, and prints the resulting execution summary. It is not part of the
// kernel's contract — callers embedding the kernel package never need it.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "kernelctl:", err)
		os.Exit(1)
	}
}

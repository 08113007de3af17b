// linknotes is the admin CLI: it edits the note store directly, rebuilds the
// backlink graph, writes exports and serves MCP over stdio.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

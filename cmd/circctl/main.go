// Command circctl runs maintenance tasks against the circulation store:
// schema migrations, invariant audits and reservation expiry sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/ngenohkevin/circulation/internal/config"
)

func main() {
	if err := newRootCmd(config.Load, os.Stdin).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

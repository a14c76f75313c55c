// Command patchbay loads, runs and inspects dataflow patches.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/patchbay/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

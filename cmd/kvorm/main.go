// Command kvorm saves and finds typed records in a key-value store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kvorm/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

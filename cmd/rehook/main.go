// Command rehook serves and inspects stateless hook components.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rehook/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rehook:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

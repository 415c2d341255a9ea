// Command eidolon runs the scan orchestrator and streaming task runtime:
// "eidolon serve" starts the HTTP API, "eidolon migrate" applies the
// config-store schema.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "eidolon",
		Short: "Network scan orchestrator and streaming task runtime",
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command gatecheck scores a generation request with the quality gate
// without calling the image backend.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatecheck",
		Short:         "Run the pre-generation quality gate locally",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newScoreCmd())
	return root
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "annotate",
		Short:         "Annotate clinical text from the command line",
		Long:          `annotate runs documents through the annotation engine and writes the AnnotatedOutput XML`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("dictionary", "", "dictionary YAML for the built-in engine (default: bundled)")
	root.PersistentFlags().String("engine-url", "", "use the remote annotation server at this URL")
	root.PersistentFlags().Duration("lock-timeout", 0, "give up waiting for the engine after this long")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

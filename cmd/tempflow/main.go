package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(newRootCommand(), os.Args[1:]))
}

// run executes root with args and maps the outcome to the process exit status.
func run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

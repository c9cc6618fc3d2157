package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Operate a schema registry",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newDDLCmd(),
		newLoadCmd(),
		newRebuildCmd(),
		newTokenCmd(),
	)
	return root
}

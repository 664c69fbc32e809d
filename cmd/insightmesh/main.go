package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "insightmesh",
		Short:         "Conversational analytics over tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	root.AddCommand(newAskCmd(&cfgPath))
	root.AddCommand(newPlanCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))

	return root
}

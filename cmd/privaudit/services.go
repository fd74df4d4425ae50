package main

import (
	"fmt"

	"github.com/privaudit/privaudit/internal/collectors"
	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the service collectors and the services they audit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range collectors.Default().All() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", c.Kind(), c.Service())
		}
		return nil
	},
}

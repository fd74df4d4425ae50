package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "privaudit",
	Short:         "Privaudit reports who holds privileged roles across a Microsoft 365 tenant.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		})
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(auditCmd, serveCmd, servicesCmd, versionCmd)
}

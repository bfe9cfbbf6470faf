package cmd

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and trigger background tasks",
	Long:  `List, trigger and read the logs of server background tasks such as blob-gc. Requires an admin session (kartei login).`,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

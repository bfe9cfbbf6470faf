package cmd

import (
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Administrative audit commands",
	Long:  `View template changes and artifact requests recorded by the server. Requires an admin session (kartei login).`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

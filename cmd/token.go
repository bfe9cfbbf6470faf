package cmd

import (
	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Interact with session tokens",
	Long:  "Local helpers for the HS256 session tokens accepted by jwt issuers.",
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

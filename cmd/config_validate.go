package cmd

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  "Parses the server configuration, applies defaults and prints a summary of the selected components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServerConfig()
		if err != nil {
			log.Error().Err(err).Msgf("%s Configuration is invalid.", redCross)
			return BeQuietError{}
		}
		logSuccess("Configuration is valid.")

		issuers := make([]string, 0, len(cfg.Auth.Issuers))
		for _, iss := range cfg.Auth.Issuers {
			issuers = append(issuers, fmt.Sprintf("%s (%s)", iss.Name, iss.Type))
		}
		schedule := cfg.Cleanup.Schedule
		if schedule == "" {
			schedule = "manual only"
		}

		fmt.Println(bold("\n── Kartei Configuration ──"))
		fmt.Printf("  %s:        %s\n", faint("Issuers"), strings.Join(issuers, ", "))
		fmt.Printf("  %s:      %v\n", faint("On-behalf"), cfg.Auth.OnBehalfAllowed())
		fmt.Printf("  %s:       %s\n", faint("Database"), cfg.Database.Driver)
		fmt.Printf("  %s:     %s\n", faint("Blob store"), cfg.Blob.Type)
		fmt.Printf("  %s:          %v (%s)\n", faint("Audit"), cfg.Audit.Enabled, cfg.Audit.Type)
		fmt.Printf("  %s: %d\n", faint("Template cache"), cfg.Templates.CacheSize)
		fmt.Printf("  %s: %d\n", faint("Compose workers"), cfg.Issuance.ComposeWorkers)
		fmt.Printf("  %s:  %d\n", faint("Commit retries"), cfg.Issuance.CommitRetries)
		fmt.Printf("  %s:      %d\n", faint("Max pixels"), cfg.Issuance.MaxImagePixels)
		fmt.Printf("  %s:         %s\n", faint("Blob GC"), schedule)
		fmt.Printf("  %s:        %v\n", faint("Metrics"), cfg.Metrics.Enabled)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darmiel/kartei/internal/cliconfig"
	"github.com/darmiel/kartei/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login TOKEN",
	Short: "Authenticate with a Kartei server",
	Long: `Verifies a platform session token against the server and saves it locally
to allow future authenticated requests (templates, artifacts, audit logs).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loginToken := args[0]
		if loginToken == "" {
			return fmt.Errorf("token cannot be empty")
		}

		server := viper.GetString(KarteiAddrKey)
		if server == "" {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}

		cli := client.New(server, client.WithAuthToken(loginToken))

		log.Info().Msgf("Verifying token with server %q...", server)
		caller, correlation, err := cli.WhoAmI(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to verify token")
		}

		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		if err := cfg.SetCredential(server, &cliconfig.Credential{
			Token:   loginToken,
			Subject: caller.ID,
			Role:    string(caller.Role),
		}); err != nil {
			return err
		}
		if err := cliconfig.Save(cfg); err != nil {
			return logError(err, "", "login succeeded but could not save credentials")
		}

		logSuccess("logged in as %s (%s)", bold(caller.ID), caller.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved credentials of a Kartei server",
	RunE: func(cmd *cobra.Command, args []string) error {
		server := viper.GetString(KarteiAddrKey)
		if server == "" {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		removed, err := cfg.RemoveCredential(server)
		if err != nil {
			return err
		}
		if !removed {
			log.Info().Msg("No credentials stored for this server.")
			return nil
		}
		if err := cliconfig.Save(cfg); err != nil {
			return err
		}
		logSuccess("removed credentials for %s", bold(server))
		return nil
	},
}

func loadCLIConfig() (*cliconfig.CLIConfig, error) {
	cfg, err := cliconfig.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = &cliconfig.CLIConfig{}
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

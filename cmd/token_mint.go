package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/auth"
	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

var (
	mintIssuer  string
	mintSubject string
	mintRole    string
	mintTTL     time.Duration
)

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a session token with the secret of a jwt issuer",
	Long: `Signs a session token locally with the secret of a jwt issuer from --config.
Intended for development and for bootstrapping the first admin session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServerConfig()
		if err != nil {
			return err
		}

		issuerCfg, err := findJWTIssuer(cfg, mintIssuer)
		if err != nil {
			return err
		}
		provider, err := auth.NewJWTProvider(*issuerCfg)
		if err != nil {
			return err
		}

		role := core.Role(mintRole)
		if role != core.RoleAdmin && role != core.RoleStudent {
			return fmt.Errorf("unknown role '%s', expected '%s' or '%s'", mintRole, core.RoleAdmin, core.RoleStudent)
		}

		token, expiresAt, err := provider.Mint(mintSubject, role, mintTTL)
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}
		log.Info().Msgf("%s minted %s token for %s via issuer %s (expires %s)",
			greenCheck, role, bold(mintSubject), issuerCfg.Name, expiresAt.Format(time.RFC3339))
		fmt.Println(token)
		return nil
	},
}

// findJWTIssuer returns the named jwt issuer, or the only one when name is empty.
func findJWTIssuer(cfg *config.Config, name string) (*config.IssuerConfig, error) {
	var candidates []config.IssuerConfig
	for _, iss := range cfg.Auth.Issuers {
		if iss.Type != "jwt" {
			continue
		}
		if name != "" && iss.Name == name {
			return &iss, nil
		}
		candidates = append(candidates, iss)
	}
	if name != "" {
		return nil, fmt.Errorf("no jwt issuer named '%s'", name)
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("no jwt issuer configured")
	case 1:
		return &candidates[0], nil
	default:
		return nil, fmt.Errorf("%d jwt issuers configured, select one with --issuer", len(candidates))
	}
}

func init() {
	tokenCmd.AddCommand(tokenMintCmd)

	tokenMintCmd.Flags().StringVar(&mintIssuer, "issuer", "", "Name of the jwt issuer (optional if only one is configured)")
	tokenMintCmd.Flags().StringVar(&mintSubject, "sub", "", "Subject (student or admin ID)")
	tokenMintCmd.Flags().StringVar(&mintRole, "role", string(core.RoleStudent), "Role of the caller (admin, student)")
	tokenMintCmd.Flags().DurationVar(&mintTTL, "ttl", auth.DefaultSessionTTL, "Token lifetime")

	_ = tokenMintCmd.MarkFlagRequired("sub")
}

package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mitchellh/mapstructure"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

type OIDCProviderConfig struct {
	IssuerURL string `mapstructure:"issuer_url"`
	ClientID  string `mapstructure:"client_id"`
	RoleClaim string `mapstructure:"role_claim"`
}

// OIDCProvider resolves ID tokens of a federated identity provider.
type OIDCProvider struct {
	name      string
	issuerURL string
	roleClaim string
	verifier  *oidc.IDTokenVerifier
}

func NewOIDCProvider(ctx context.Context, cfg config.IssuerConfig) (*OIDCProvider, error) {
	var conf OIDCProviderConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &conf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder for oidc issuer '%s': %w", cfg.Name, err)
	}
	if err := decoder.Decode(cfg.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for oidc issuer '%s': %w", cfg.Name, err)
	}
	if conf.IssuerURL == "" {
		return nil, fmt.Errorf("oidc issuer '%s' missing 'issuer_url'", cfg.Name)
	}
	if conf.ClientID == "" {
		return nil, fmt.Errorf("oidc issuer '%s' missing 'client_id'", cfg.Name)
	}
	if conf.RoleClaim == "" {
		conf.RoleClaim = DefaultRoleClaim
	}

	provider, err := oidc.NewProvider(ctx, conf.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("creating oidc provider for issuer '%s': %w", cfg.Name, err)
	}

	return &OIDCProvider{
		name:      cfg.Name,
		issuerURL: conf.IssuerURL,
		roleClaim: conf.RoleClaim,
		verifier:  provider.Verifier(&oidc.Config{ClientID: conf.ClientID}),
	}, nil
}

func (o *OIDCProvider) Name() string {
	return o.name
}

func (o *OIDCProvider) IssuerURL() string {
	return o.issuerURL
}

func (o *OIDCProvider) Resolve(ctx context.Context, token string) (*core.Caller, error) {
	idToken, err := o.verifier.Verify(ctx, token)
	if err != nil {
		return nil, &core.AuthenticationError{Reason: "oidc verification failed", Err: err}
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, &core.AuthenticationError{Reason: "extracting oidc claims", Err: err}
	}
	return callerFromClaims(o.name, claims, o.roleClaim)
}

// Package auth resolves opaque credentials to callers.
// It implements the Auth Provider collaborator for session JWTs, OIDC ID tokens
// and static service tokens.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

// issuerBound is implemented by providers that only accept tokens with a specific 'iss' claim.
type issuerBound interface {
	IssuerURL() string
}

// Registry dispatches a credential to the provider responsible for it.
// JWTs are routed by their 'iss' claim; anything else is tried against the
// static providers in configuration order.
type Registry struct {
	byIssuer map[string]core.AuthProvider
	fallback []core.AuthProvider
	byName   map[string]core.AuthProvider
}

func NewRegistry(providers ...core.AuthProvider) *Registry {
	r := &Registry{
		byIssuer: make(map[string]core.AuthProvider),
		byName:   make(map[string]core.AuthProvider),
	}
	for _, p := range providers {
		r.byName[p.Name()] = p
		if ib, ok := p.(issuerBound); ok {
			r.byIssuer[ib.IssuerURL()] = p
			continue
		}
		r.fallback = append(r.fallback, p)
	}
	return r
}

func BuildRegistry(ctx context.Context, cfgs []config.IssuerConfig) (*Registry, error) {
	providers := make([]core.AuthProvider, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.Type {
		case "jwt":
			p, err := NewJWTProvider(cfg)
			if err != nil {
				return nil, fmt.Errorf("building jwt issuer %q: %w", cfg.Name, err)
			}
			providers = append(providers, p)
		case "static":
			p, err := NewStatic(cfg)
			if err != nil {
				return nil, fmt.Errorf("building static issuer %q: %w", cfg.Name, err)
			}
			providers = append(providers, p)
		case "oidc":
			p, err := NewOIDCProvider(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("building oidc issuer %q: %w", cfg.Name, err)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown issuer type %q for issuer %q", cfg.Type, cfg.Name)
		}
	}
	return NewRegistry(providers...), nil
}

func (r *Registry) Name() string {
	return "registry"
}

// Provider returns a configured provider by name.
func (r *Registry) Provider(name string) (core.AuthProvider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Resolve(ctx context.Context, credential string) (*core.Caller, error) {
	if iss, err := ExtractIssuerURL(credential); err == nil {
		p, ok := r.byIssuer[iss]
		if !ok {
			return nil, &core.AuthenticationError{Reason: fmt.Sprintf("untrusted token issuer '%s'", iss)}
		}
		return p.Resolve(ctx, credential)
	}

	for _, p := range r.fallback {
		if caller, err := p.Resolve(ctx, credential); err == nil {
			return caller, nil
		}
	}
	return nil, &core.AuthenticationError{Reason: "credential not recognized"}
}

// ExtractIssuerURL extracts the 'iss' claim from a JWT token string without verifying it.
func ExtractIssuerURL(tokenString string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	issRaw, ok := claims["iss"]
	if !ok {
		return "", fmt.Errorf("token missing 'iss' claim")
	}

	iss, ok := issRaw.(string)
	if !ok {
		return "", fmt.Errorf("invalid 'iss' claim type")
	}

	return iss, nil
}

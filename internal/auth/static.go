package auth

import (
	"context"
	"fmt"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

// StaticProvider maps fixed tokens to callers. Meant for service accounts and tests.
type StaticProvider struct {
	name     string
	tokenMap map[string]core.Caller
}

func NewStatic(cfg config.IssuerConfig) (*StaticProvider, error) {
	rawMap, ok := cfg.Config["token_map"].(map[string]any)
	if !ok {
		// if no map provided, just create an empty one, which always fails verification
		return &StaticProvider{name: cfg.Name}, nil
	}

	tokenMap := make(map[string]core.Caller)
	for token, attrsRaw := range rawMap {
		attrs, ok := attrsRaw.(map[string]any)
		if !ok {
			continue
		}
		sub := fmt.Sprint(attrs["sub"])
		if attrs["sub"] == nil || sub == "" {
			return nil, fmt.Errorf("static issuer '%s' has a token without 'sub'", cfg.Name)
		}
		role, err := parseRole(attrs["role"])
		if err != nil {
			return nil, fmt.Errorf("static issuer '%s': %w", cfg.Name, err)
		}
		tokenMap[token] = core.Caller{ID: sub, Role: role, Issuer: cfg.Name}
	}

	return &StaticProvider{
		name:     cfg.Name,
		tokenMap: tokenMap,
	}, nil
}

func (s *StaticProvider) Name() string {
	return s.name
}

func (s *StaticProvider) Resolve(_ context.Context, token string) (*core.Caller, error) {
	caller, ok := s.tokenMap[token]
	if !ok {
		return nil, &core.AuthenticationError{Reason: "unknown static token"}
	}
	return &caller, nil
}

// Package guard decides who may perform which issuance operation.
// It is the only path to elevated (admin) operations.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/darmiel/kartei/internal/core"
)

type Guard struct {
	provider      core.AuthProvider
	allowOnBehalf bool
}

type Option func(*Guard)

// WithoutOnBehalf restricts GenerateArtifact strictly to the resource owner,
// even for admins.
func WithoutOnBehalf() Option {
	return func(g *Guard) {
		g.allowOnBehalf = false
	}
}

func New(provider core.AuthProvider, opts ...Option) *Guard {
	g := &Guard{
		provider:      provider,
		allowOnBehalf: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate resolves the credential without checking any capability.
// Errors from the provider are surfaced as AuthenticationError.
func (g *Guard) Authenticate(ctx context.Context, credential string) (*core.Caller, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, &core.AuthenticationError{Reason: "missing credential"}
	}
	caller, err := g.provider.Resolve(ctx, credential)
	if err != nil {
		var authErr *core.AuthenticationError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, &core.AuthenticationError{Reason: "credential rejected", Err: err}
	}
	if caller == nil || caller.ID == "" {
		return nil, &core.AuthenticationError{Reason: "credential resolved to no subject"}
	}
	return caller, nil
}

// Authorize resolves the credential and checks the capability.
// resourceOwnerID is required for artifact capabilities and ignored otherwise.
func (g *Guard) Authorize(
	ctx context.Context,
	credential string,
	capability core.Capability,
	resourceOwnerID string,
) (*core.Caller, error) {
	caller, err := g.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	if err := g.Check(caller, capability, resourceOwnerID); err != nil {
		return caller, err
	}
	return caller, nil
}

// Check is the pure decision for an already resolved caller.
func (g *Guard) Check(caller *core.Caller, capability core.Capability, resourceOwnerID string) error {
	switch capability {
	case core.CapManageTemplate:
		if !caller.IsAdmin() {
			return &core.PermissionError{Reason: "managing templates requires the admin role"}
		}
		return nil
	case core.CapGenerateArtifact, core.CapReadArtifact:
		if resourceOwnerID == "" {
			return &core.PermissionError{Reason: "no resource owner given"}
		}
		if caller.ID == resourceOwnerID {
			return nil
		}
		if caller.IsAdmin() && g.allowOnBehalf {
			return nil
		}
		return &core.PermissionError{Reason: "artifacts can only be requested by their owner"}
	default:
		return &core.PermissionError{Reason: fmt.Sprintf("unknown capability '%s'", capability)}
	}
}

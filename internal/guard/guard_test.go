package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/core"
)

type mapProvider map[string]*core.Caller

func (m mapProvider) Name() string { return "map" }

func (m mapProvider) Resolve(_ context.Context, credential string) (*core.Caller, error) {
	c, ok := m[credential]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return c, nil
}

var callers = mapProvider{
	"admin-token": {ID: "root", Role: core.RoleAdmin},
	"ana-token":   {ID: "ana", Role: core.RoleStudent},
	"bob-token":   {ID: "bob", Role: core.RoleStudent},
}

func TestGuard_Authorize(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		credential string
		capability core.Capability
		owner      string
		wantAuth   bool
		wantPerm   bool
	}{
		{name: "Admin manages templates", credential: "admin-token", capability: core.CapManageTemplate},
		{name: "Student cannot manage templates", credential: "ana-token", capability: core.CapManageTemplate, wantPerm: true},
		{name: "Student generates own artifact", credential: "ana-token", capability: core.CapGenerateArtifact, owner: "ana"},
		{name: "Student cannot generate for others", credential: "bob-token", capability: core.CapGenerateArtifact, owner: "ana", wantPerm: true},
		{name: "Admin generates on behalf", credential: "admin-token", capability: core.CapGenerateArtifact, owner: "ana"},
		{
			name: "Admin on behalf disabled", opts: []Option{WithoutOnBehalf()},
			credential: "admin-token", capability: core.CapGenerateArtifact, owner: "ana", wantPerm: true,
		},
		{name: "Missing owner", credential: "ana-token", capability: core.CapReadArtifact, wantPerm: true},
		{name: "Unknown capability", credential: "admin-token", capability: "launch_rockets", wantPerm: true},
		{name: "Unknown credential", credential: "nope", capability: core.CapManageTemplate, wantAuth: true},
		{name: "Empty credential", credential: "  ", capability: core.CapManageTemplate, wantAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(callers, tt.opts...)
			caller, err := g.Authorize(context.Background(), tt.credential, tt.capability, tt.owner)

			var authErr *core.AuthenticationError
			var permErr *core.PermissionError
			switch {
			case tt.wantAuth:
				require.ErrorAs(t, err, &authErr)
				assert.Nil(t, caller)
			case tt.wantPerm:
				require.ErrorAs(t, err, &permErr)
			default:
				require.NoError(t, err)
				require.NotNil(t, caller)
			}
		})
	}
}

func TestGuard_AuthenticationErrorSurfacedUnchanged(t *testing.T) {
	want := &core.AuthenticationError{Reason: "token expired"}
	g := New(failingProvider{err: want})

	_, err := g.Authenticate(context.Background(), "whatever")
	var got *core.AuthenticationError
	require.ErrorAs(t, err, &got)
	assert.Same(t, want, got)
}

type failingProvider struct{ err error }

func (f failingProvider) Name() string { return "failing" }

func (f failingProvider) Resolve(context.Context, string) (*core.Caller, error) {
	return nil, f.err
}

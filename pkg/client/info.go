package client

import (
	"context"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/buildinfo"
	"github.com/darmiel/kartei/internal/core"
)

func (c *Client) Info(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().
		setPath(api.AboutRoute).
		build(), &info)
	return &info, correlation, err
}

// WhoAmI resolves the configured auth token to its caller.
func (c *Client) WhoAmI(ctx context.Context) (*core.Caller, string, error) {
	var caller core.Caller
	correlation, err := c.get(ctx, c.url().
		setPath(api.WhoAmIRoute).
		build(), &caller)
	return &caller, correlation, err
}

package client

import (
	"context"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/core"
)

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	Action        string
	CallerID      string
	StudentID     string
	CourseID      string
	Kind          core.Kind
	// Granted filters allowed (true) or denied (false) decisions.
	Granted *bool
}

// ListAudits retrieves the latest audit entries from the server.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	for key, value := range map[string]string{
		"correlation_id": opts.CorrelationID,
		"action":         opts.Action,
		"caller_id":      opts.CallerID,
		"student_id":     opts.StudentID,
		"course_id":      opts.CourseID,
		"kind":           string(opts.Kind),
	} {
		if value != "" {
			ub = ub.addQueryParam(key, value)
		}
	}
	if opts.Granted != nil {
		ub = ub.addQueryParam("granted", *opts.Granted)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}

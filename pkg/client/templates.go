package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/core"
)

func templateURL(c *Client, route, courseID string, kind core.Kind) string {
	return c.url().
		setPath(route).
		setPathParam("courseId", courseID).
		setPathParam("kind", string(kind)).
		build()
}

// GetTemplate returns the current template of a course. Admin only.
func (c *Client) GetTemplate(ctx context.Context, courseID string, kind core.Kind) (*core.Template, string, error) {
	var tpl core.Template
	correlation, err := c.get(ctx, templateURL(c, api.TemplateRoute, courseID, kind), &tpl)
	if err != nil {
		return nil, correlation, err
	}
	return &tpl, correlation, nil
}

// PutTemplate fully replaces the template of a course. Admin only.
func (c *Client) PutTemplate(
	ctx context.Context,
	courseID string,
	kind core.Kind,
	payload api.TemplatePayload,
) (*core.Template, string, error) {
	var tpl core.Template
	correlation, err := c.put(ctx, templateURL(c, api.TemplateRoute, courseID, kind), payload, &tpl)
	if err != nil {
		return nil, correlation, err
	}
	return &tpl, correlation, nil
}

// UploadBackground stores a PNG or JPEG background and returns its reference.
func (c *Client) UploadBackground(
	ctx context.Context,
	courseID string,
	kind core.Kind,
	data []byte,
	contentType string,
) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		templateURL(c, api.BackgroundRoute, courseID, kind), bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var res api.BackgroundResponse
	correlation, err := c.do(req, &res)
	return res.BackgroundRef, correlation, err
}

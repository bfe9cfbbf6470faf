package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/service"
)

type RequestArtifactOptions struct {
	// StudentID requests on behalf of another student (admin only).
	// Empty means the authenticated caller.
	StudentID string

	// Photo is an optional fresh portrait for cards (PNG or JPEG).
	Photo []byte

	// CompletionDate (YYYY-MM-DD) overrides the date rendered on certificates.
	CompletionDate string
}

func artifactURL(c *Client, route, studentID, courseID string, kind core.Kind) string {
	ub := c.url().
		setPath(route).
		setPathParam("courseId", courseID).
		setPathParam("kind", string(kind))
	if studentID != "" {
		ub = ub.addQueryParam(api.StudentIDParam, studentID)
	}
	return ub.build()
}

// RequestArtifact generates the current artifact. A closed eligibility gate
// is reported as *NotYetAvailableError.
func (c *Client) RequestArtifact(
	ctx context.Context,
	courseID string,
	kind core.Kind,
	opts RequestArtifactOptions,
) (*core.Artifact, string, error) {
	body, err := json.Marshal(api.ArtifactPayload{
		Photo:          opts.Photo,
		CompletionDate: opts.CompletionDate,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshaling payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		artifactURL(c, api.ArtifactRoute, opts.StudentID, courseID, kind), bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return nil, "", err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)
	correlation := correlationFromResponse(resp)

	switch {
	case resp.StatusCode >= 400:
		return nil, correlation, parseErrorResponse(resp)
	case resp.StatusCode == http.StatusAccepted:
		return nil, correlation, parseNotYetAvailable(resp)
	}

	var artifact core.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return nil, correlation, fmt.Errorf("failed to decode response: %w", err)
	}
	return &artifact, correlation, nil
}

// GetArtifact returns the current artifact pointer.
func (c *Client) GetArtifact(ctx context.Context, courseID string, kind core.Kind, studentID string) (*core.Artifact, string, error) {
	var artifact core.Artifact
	correlation, err := c.get(ctx, artifactURL(c, api.ArtifactRoute, studentID, courseID, kind), &artifact)
	if err != nil {
		return nil, correlation, err
	}
	return &artifact, correlation, nil
}

// DownloadArtifact returns the rendered image bytes and their content type.
func (c *Client) DownloadArtifact(ctx context.Context, courseID string, kind core.Kind, studentID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		artifactURL(c, api.ArtifactImageRoute, studentID, courseID, kind), nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, "", err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, "", parseErrorResponse(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// GetEligibility returns when the student may request artifacts of a course.
func (c *Client) GetEligibility(ctx context.Context, courseID, studentID string) (*service.EligibilityView, string, error) {
	ub := c.url().
		setPath(api.EligibilityRoute).
		setPathParam("courseId", courseID)
	if studentID != "" {
		ub = ub.addQueryParam(api.StudentIDParam, studentID)
	}
	var view service.EligibilityView
	correlation, err := c.get(ctx, ub.build(), &view)
	if err != nil {
		return nil, correlation, err
	}
	return &view, correlation, nil
}

package service

import (
	"time"

	"github.com/darmiel/kartei/internal/core"
)

// DateLayout is used for dates rendered onto artifacts.
const DateLayout = "2006-01-02"

// Audit actions.
const (
	ActionTemplateUpdate   = "template.update"
	ActionBackgroundUpload = "template.background"
	ActionArtifactRequest  = "artifact.request"
)

type ArtifactRequest struct {
	// Credential is the opaque caller credential.
	Credential string

	StudentID string
	CourseID  string
	Kind      core.Kind

	// Photo is an optional freshly uploaded portrait (cards only).
	Photo []byte

	// CompletionDate overrides the date rendered on certificates.
	CompletionDate *time.Time
}

type ArtifactImage struct {
	Artifact    *core.Artifact
	Data        []byte
	ContentType string
}

type EligibilityView struct {
	StudentID     string    `json:"student_id"`
	CourseID      string    `json:"course_id"`
	Eligible      bool      `json:"eligible"`
	AvailableAt   time.Time `json:"available_at"`
	DaysRemaining int       `json:"days_remaining"`
}

package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "template.update", "artifact.request")
	Action string `json:"action"`

	// Caller identifies who made the request
	Caller *Caller `json:"caller"`

	// Target of the request
	StudentID string `json:"student_id,omitempty"`
	CourseID  string `json:"course_id,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`

	// Decision details
	Granted bool   `json:"granted"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`

	// RenderedRef is set when an artifact was committed
	RenderedRef string `json:"rendered_ref,omitempty"`

	// Metadata contains extra details
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// AuditReader is implemented by auditors that can be queried.
type AuditReader interface {
	GetRecent(limit int) ([]AuditEntry, error)
	Find(filter func(entry AuditEntry) bool, limit int) ([]AuditEntry, error)
}

package core

import (
	"context"
	"time"
)

// AuthProvider resolves an opaque credential to a caller.
// Implementations: JWT session provider, OIDC provider, static token map.
type AuthProvider interface {
	// Name returns the identifier of this provider (as used in config).
	Name() string

	// Resolve validates the credential and returns the caller behind it.
	Resolve(ctx context.Context, credential string) (*Caller, error)
}

// EnrollmentStore is the read side of the course/enrollment records.
type EnrollmentStore interface {
	// GetEnrollment returns ErrNotFound if the student is not enrolled.
	GetEnrollment(ctx context.Context, studentID, courseID string) (*Enrollment, error)

	// GetCourse returns ErrNotFound for unknown courses.
	GetCourse(ctx context.Context, courseID string) (*Course, error)
}

// ProfileStore returns the student data rendered onto artifacts.
type ProfileStore interface {
	GetProfile(ctx context.Context, studentID string) (*Profile, error)
}

// BlobStore persists binary assets. Put is idempotent for the same path.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// TemplateStore is the persistence boundary of the template registry.
type TemplateStore interface {
	GetTemplate(ctx context.Context, courseID string, kind Kind) (*Template, error)
	// PutTemplate fully replaces the template stored for (courseID, kind).
	PutTemplate(ctx context.Context, tpl Template) error
}

// ArtifactStore holds the current artifact pointer per key.
type ArtifactStore interface {
	// GetArtifact returns ErrNotFound if no artifact was ever committed for the key.
	GetArtifact(ctx context.Context, key ArtifactKey) (*Artifact, error)

	// CompareAndSwap atomically replaces the pointer if the stored version equals
	// expectedVersion (0 means "absent"). On success the stored version is
	// expectedVersion+1 and is written back into next. Returns ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, expectedVersion int64, next *Artifact) error
}

// PendingDeletion is a blob reference whose deletion failed after a commit.
type PendingDeletion struct {
	Ref       string    `json:"ref"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// DeletionQueue records blob references that still have to be removed.
type DeletionQueue interface {
	Enqueue(ctx context.Context, ref, reason string) error
	List(ctx context.Context, limit int) ([]PendingDeletion, error)
	Done(ctx context.Context, ref string) error
	Failed(ctx context.Context, ref string) error
}

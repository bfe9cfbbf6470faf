package sqlstore

import (
	"time"

	"github.com/darmiel/kartei/internal/core"
)

type templateRow struct {
	CourseID      string                    `gorm:"primaryKey;size:128"`
	Kind          string                    `gorm:"primaryKey;size:32"`
	BackgroundRef string                    `gorm:"not null"`
	Fields        map[string]core.FieldSpec `gorm:"serializer:json;type:text"`
	PhotoSpec     *core.PhotoSpec           `gorm:"serializer:json;type:text"`
	UpdatedBy     string
	UpdatedAt     time.Time
}

func (templateRow) TableName() string { return "templates" }

func templateFromCore(tpl core.Template) templateRow {
	return templateRow{
		CourseID:      tpl.CourseID,
		Kind:          string(tpl.Kind),
		BackgroundRef: tpl.BackgroundRef,
		Fields:        tpl.Fields,
		PhotoSpec:     tpl.PhotoSpec,
		UpdatedBy:     tpl.UpdatedBy,
		UpdatedAt:     tpl.UpdatedAt,
	}
}

func (r templateRow) toCore() *core.Template {
	return &core.Template{
		CourseID:      r.CourseID,
		Kind:          core.Kind(r.Kind),
		BackgroundRef: r.BackgroundRef,
		Fields:        r.Fields,
		PhotoSpec:     r.PhotoSpec,
		UpdatedBy:     r.UpdatedBy,
		UpdatedAt:     r.UpdatedAt,
	}
}

type artifactRow struct {
	StudentID      string `gorm:"primaryKey;size:128"`
	CourseID       string `gorm:"primaryKey;size:128"`
	Kind           string `gorm:"primaryKey;size:32"`
	RenderedRef    string `gorm:"not null"`
	SourcePhotoRef string
	GeneratedAt    time.Time
	Status         string `gorm:"size:16;not null"`
	Version        int64  `gorm:"not null"`
}

func (artifactRow) TableName() string { return "artifacts" }

func artifactFromCore(a core.Artifact) artifactRow {
	return artifactRow{
		StudentID:      a.StudentID,
		CourseID:       a.CourseID,
		Kind:           string(a.Kind),
		RenderedRef:    a.RenderedRef,
		SourcePhotoRef: a.SourcePhotoRef,
		GeneratedAt:    a.GeneratedAt,
		Status:         string(a.Status),
		Version:        a.Version,
	}
}

func (r artifactRow) toCore() *core.Artifact {
	return &core.Artifact{
		ArtifactKey: core.ArtifactKey{
			StudentID: r.StudentID,
			CourseID:  r.CourseID,
			Kind:      core.Kind(r.Kind),
		},
		RenderedRef:    r.RenderedRef,
		SourcePhotoRef: r.SourcePhotoRef,
		GeneratedAt:    r.GeneratedAt,
		Status:         core.ArtifactStatus(r.Status),
		Version:        r.Version,
	}
}

type courseRow struct {
	ID              string `gorm:"primaryKey;size:128"`
	Title           string
	UnlockDelayDays int `gorm:"not null;default:0"`
}

func (courseRow) TableName() string { return "courses" }

type enrollmentRow struct {
	StudentID   string `gorm:"primaryKey;size:128"`
	CourseID    string `gorm:"primaryKey;size:128"`
	EnrolledAt  time.Time
	CompletedAt *time.Time
}

func (enrollmentRow) TableName() string { return "enrollments" }

type profileRow struct {
	StudentID        string `gorm:"primaryKey;size:128"`
	Name             string
	IdentifierNumber string
	PhotoRef         string
}

func (profileRow) TableName() string { return "profiles" }

type pendingDeletionRow struct {
	Ref       string `gorm:"primaryKey"`
	Reason    string
	CreatedAt time.Time `gorm:"index"`
	Attempts  int       `gorm:"not null;default:0"`
}

func (pendingDeletionRow) TableName() string { return "pending_deletions" }

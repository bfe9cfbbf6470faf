package core

import (
	"fmt"
	"time"
)

// Kind discriminates the two artifact types.
type Kind string

const (
	KindCard        Kind = "card"
	KindCertificate Kind = "certificate"
)

// ParseKind converts a raw path segment into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindCard, KindCertificate:
		return k, nil
	default:
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown artifact kind '%s'", raw)}
	}
}

func (k Kind) String() string {
	return string(k)
}

// Align anchors a text field horizontally at its x coordinate.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Well-known field names the coordinator fills from student data.
const (
	FieldStudentName      = "studentName"
	FieldIdentifierNumber = "identifierNumber"
	FieldCompletionDate   = "completionDate"
	FieldIssueDate        = "issueDate"
	FieldCourseName       = "courseName"
)

// RequiredFields returns the placements a template of kind must define.
// Unknown kinds have no required set.
func RequiredFields(kind Kind) []string {
	switch kind {
	case KindCard:
		return []string{FieldStudentName, FieldIdentifierNumber}
	case KindCertificate:
		return []string{FieldStudentName, FieldCompletionDate}
	default:
		return nil
	}
}

// FieldSpec describes where and how a single text value is drawn.
type FieldSpec struct {
	X          int     `json:"x" yaml:"x"`
	Y          int     `json:"y" yaml:"y"`
	FontSize   float64 `json:"font_size" yaml:"font_size"`
	FontFamily string  `json:"font_family,omitempty" yaml:"font_family,omitempty"`
	// Color is a hex color, e.g. "#1a1a1a" or "#1a1a1aff".
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	Align Align  `json:"align,omitempty" yaml:"align,omitempty"`
}

// PhotoSpec is the rectangle a portrait is cropped and scaled into.
type PhotoSpec struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Template is the per-course, per-kind render configuration.
type Template struct {
	CourseID string `json:"course_id"`
	Kind     Kind   `json:"kind"`

	// BackgroundRef points to the background image in the blob store.
	BackgroundRef string `json:"background_ref"`

	// Fields is an open set of named placements.
	Fields map[string]FieldSpec `json:"fields"`

	// PhotoSpec is required for cards and ignored for certificates.
	PhotoSpec *PhotoSpec `json:"photo_spec,omitempty"`

	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy so cached templates cannot be mutated by callers.
func (t Template) Clone() Template {
	cpy := t
	if t.Fields != nil {
		cpy.Fields = make(map[string]FieldSpec, len(t.Fields))
		for k, v := range t.Fields {
			cpy.Fields[k] = v
		}
	}
	if t.PhotoSpec != nil {
		ps := *t.PhotoSpec
		cpy.PhotoSpec = &ps
	}
	return cpy
}

// ArtifactStatus is the lifecycle state of an artifact pointer.
type ArtifactStatus string

const (
	StatusPending  ArtifactStatus = "pending"
	StatusComplete ArtifactStatus = "complete"
)

// ArtifactKey identifies the single current artifact of a student.
type ArtifactKey struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	Kind      Kind   `json:"kind"`
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.StudentID, k.CourseID, k.Kind)
}

// Artifact is the pointer to the current rendered image of a key.
type Artifact struct {
	ArtifactKey

	RenderedRef    string         `json:"rendered_ref"`
	SourcePhotoRef string         `json:"source_photo_ref,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Status         ArtifactStatus `json:"status"`

	// Version is bumped on every committed write and used for compare-and-swap.
	Version int64 `json:"version"`
}

// Role of an authenticated caller.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Caller is the identity resolved by an AuthProvider.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	// Issuer is the name of the auth provider that resolved this caller.
	Issuer string `json:"issuer,omitempty"`
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Capability names an operation the Guard can authorize.
type Capability string

const (
	CapManageTemplate   Capability = "manage_template"
	CapGenerateArtifact Capability = "generate_artifact"
	CapReadArtifact     Capability = "read_artifact"
)

// Enrollment is the slice of an enrollment record the engine needs.
type Enrollment struct {
	StudentID   string     `json:"student_id"`
	CourseID    string     `json:"course_id"`
	EnrolledAt  time.Time  `json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Course carries per-course issuance configuration.
type Course struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	UnlockDelayDays int    `json:"unlock_delay_days"`
}

// Profile is the student data rendered onto artifacts.
type Profile struct {
	StudentID        string `json:"student_id"`
	Name             string `json:"name"`
	IdentifierNumber string `json:"identifier_number"`
	// PhotoRef is an optional profile portrait in the blob store.
	PhotoRef string `json:"photo_ref,omitempty"`
}

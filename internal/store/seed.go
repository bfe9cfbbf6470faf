package store

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/eligibility"
)

// RecordWriter accepts student records. Implemented by InMemoryRecordStore
// and the SQL store.
type RecordWriter interface {
	PutCourse(ctx context.Context, c core.Course) error
	PutEnrollment(ctx context.Context, e core.Enrollment) error
	PutProfile(ctx context.Context, p core.Profile) error
}

// RecordSet is a batch of student records, usually read from a YAML seed file.
type RecordSet struct {
	Courses     []core.Course     `yaml:"courses"`
	Enrollments []core.Enrollment `yaml:"enrollments"`
	Profiles    []core.Profile    `yaml:"profiles"`
}

func LoadRecords(path string) (*RecordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading records file: %w", err)
	}
	return ParseRecords(data)
}

func ParseRecords(data []byte) (*RecordSet, error) {
	var set RecordSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing records file: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Validate checks identifiers and that every enrollment references a known course.
func (s *RecordSet) Validate() error {
	courses := make(map[string]struct{}, len(s.Courses))
	for idx, c := range s.Courses {
		if c.ID == "" {
			return fmt.Errorf("course at index %d has empty id", idx)
		}
		if err := eligibility.CheckDelay(c.UnlockDelayDays); err != nil {
			return fmt.Errorf("course '%s': %w", c.ID, err)
		}
		courses[c.ID] = struct{}{}
	}
	for idx, e := range s.Enrollments {
		if e.StudentID == "" || e.CourseID == "" {
			return fmt.Errorf("enrollment at index %d needs student_id and course_id", idx)
		}
		if e.EnrolledAt.IsZero() {
			return fmt.Errorf("enrollment of '%s' in '%s' has no enrolled_at", e.StudentID, e.CourseID)
		}
		if _, ok := courses[e.CourseID]; !ok {
			return fmt.Errorf("enrollment of '%s' references unknown course '%s'", e.StudentID, e.CourseID)
		}
	}
	for idx, p := range s.Profiles {
		if p.StudentID == "" {
			return fmt.Errorf("profile at index %d has empty student_id", idx)
		}
	}
	return nil
}

// Apply writes all records. Existing records with the same key are replaced.
func (s *RecordSet) Apply(ctx context.Context, w RecordWriter) error {
	for _, c := range s.Courses {
		if err := w.PutCourse(ctx, c); err != nil {
			return fmt.Errorf("storing course '%s': %w", c.ID, err)
		}
	}
	for _, e := range s.Enrollments {
		if err := w.PutEnrollment(ctx, e); err != nil {
			return fmt.Errorf("storing enrollment of '%s' in '%s': %w", e.StudentID, e.CourseID, err)
		}
	}
	for _, p := range s.Profiles {
		if err := w.PutProfile(ctx, p); err != nil {
			return fmt.Errorf("storing profile of '%s': %w", p.StudentID, err)
		}
	}
	return nil
}

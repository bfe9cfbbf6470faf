package store

import (
	"context"
	"sync"

	"github.com/darmiel/kartei/internal/core"
)

type enrollmentKey struct {
	studentID string
	courseID  string
}

// InMemoryRecordStore holds courses, enrollments and profiles.
// It implements core.EnrollmentStore and core.ProfileStore.
type InMemoryRecordStore struct {
	mu          sync.RWMutex
	courses     map[string]core.Course
	enrollments map[enrollmentKey]core.Enrollment
	profiles    map[string]core.Profile
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		courses:     make(map[string]core.Course),
		enrollments: make(map[enrollmentKey]core.Enrollment),
		profiles:    make(map[string]core.Profile),
	}
}

func (s *InMemoryRecordStore) PutCourse(_ context.Context, c core.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.courses[c.ID] = c
	return nil
}

func (s *InMemoryRecordStore) PutEnrollment(_ context.Context, e core.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enrollments[enrollmentKey{studentID: e.StudentID, courseID: e.CourseID}] = e
	return nil
}

func (s *InMemoryRecordStore) PutProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.StudentID] = p
	return nil
}

func (s *InMemoryRecordStore) GetCourse(_ context.Context, courseID string) (*core.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[courseID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryRecordStore) GetEnrollment(_ context.Context, studentID, courseID string) (*core.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[enrollmentKey{studentID: studentID, courseID: courseID}]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &e, nil
}

func (s *InMemoryRecordStore) GetProfile(_ context.Context, studentID string) (*core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[studentID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

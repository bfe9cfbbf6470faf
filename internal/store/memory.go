// Package store contains in-memory implementations of the persistence ports.
// They back the "memory" database driver and are used as fakes in tests.
package store

import (
	"context"
	"sync"

	"github.com/darmiel/kartei/internal/core"
)

type templateKey struct {
	courseID string
	kind     core.Kind
}

type InMemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]core.Template
}

func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{
		templates: make(map[templateKey]core.Template),
	}
}

func (s *InMemoryTemplateStore) GetTemplate(_ context.Context, courseID string, kind core.Kind) (*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[templateKey{courseID: courseID, kind: kind}]
	if !ok {
		return nil, core.ErrNotFound
	}
	cpy := tpl.Clone()
	return &cpy, nil
}

func (s *InMemoryTemplateStore) PutTemplate(_ context.Context, tpl core.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[templateKey{courseID: tpl.CourseID, kind: tpl.Kind}] = tpl.Clone()
	return nil
}

type InMemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[core.ArtifactKey]core.Artifact
}

func NewInMemoryArtifactStore() *InMemoryArtifactStore {
	return &InMemoryArtifactStore{
		artifacts: make(map[core.ArtifactKey]core.Artifact),
	}
}

func (s *InMemoryArtifactStore) GetArtifact(_ context.Context, key core.ArtifactKey) (*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryArtifactStore) CompareAndSwap(_ context.Context, expectedVersion int64, next *core.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if a, ok := s.artifacts[next.ArtifactKey]; ok {
		current = a.Version
	}
	if current != expectedVersion {
		return core.ErrVersionConflict
	}

	next.Version = expectedVersion + 1
	s.artifacts[next.ArtifactKey] = *next
	return nil
}

// List returns all committed artifacts.
func (s *InMemoryArtifactStore) List(_ context.Context) ([]core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	return out, nil
}

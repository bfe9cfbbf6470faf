// Package audit records who changed templates and requested artifacts.
package audit

import (
	"fmt"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

// Build creates the auditor selected in the configuration.
func Build(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return NewNoopAuditor(), nil
	}
	switch cfg.Type {
	case "", "memory":
		return NewInMemoryAuditor(), nil
	case "file":
		return NewFileAuditor(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit type '%s'", cfg.Type)
	}
}

// Filter selects audit entries. Empty fields match everything.
type Filter struct {
	Action    string
	CallerID  string
	StudentID string
	CourseID  string
	Kind      core.Kind
	// Granted, when set, matches only allowed or only denied entries.
	Granted *bool
}

func (f Filter) Match(entry core.AuditEntry) bool {
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.CallerID != "" && (entry.Caller == nil || entry.Caller.ID != f.CallerID) {
		return false
	}
	if f.StudentID != "" && entry.StudentID != f.StudentID {
		return false
	}
	if f.CourseID != "" && entry.CourseID != f.CourseID {
		return false
	}
	if f.Kind != "" && entry.Kind != f.Kind {
		return false
	}
	if f.Granted != nil && entry.Granted != *f.Granted {
		return false
	}
	return true
}

package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

type readableAuditor interface {
	core.Auditor
	core.AuditReader
}

func entries() []core.AuditEntry {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []core.AuditEntry{
		{ID: "1", Time: base, Action: "template.update", Caller: &core.Caller{ID: "admin-1", Role: core.RoleAdmin}, CourseID: "go-101", Kind: core.KindCard, Granted: true},
		{ID: "2", Time: base.Add(time.Minute), Action: "artifact.request", Caller: &core.Caller{ID: "s1"}, StudentID: "s1", CourseID: "go-101", Kind: core.KindCard, Granted: true},
		{ID: "3", Time: base.Add(2 * time.Minute), Action: "artifact.request", Caller: &core.Caller{ID: "s2"}, StudentID: "s1", CourseID: "go-101", Kind: core.KindCard, Granted: false},
	}
}

func TestAuditors(t *testing.T) {
	fileAuditor, err := NewFileAuditor(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)

	for name, a := range map[string]readableAuditor{
		"memory": NewInMemoryAuditor(),
		"file":   fileAuditor,
	} {
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() {
				_ = a.Close()
			})
			for _, e := range entries() {
				require.NoError(t, a.Log(e))
			}

			recent, err := a.GetRecent(2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "2", recent[0].ID)
			assert.Equal(t, "3", recent[1].ID)

			denied := false
			found, err := a.Find(Filter{Action: "artifact.request", Granted: &denied}.Match, 10)
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "s2", found[0].Caller.ID)

			found, err = a.Find(Filter{StudentID: "s1"}.Match, 1)
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "3", found[0].ID)
		})
	}
}

func TestFileAuditor_SkipsBrokenLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewFileAuditor(path)
	require.NoError(t, err)
	defer func() {
		_ = a.Close()
	}()

	require.NoError(t, a.Log(core.AuditEntry{ID: "ok"}))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = fmt.Fprintln(f, `{"id": "trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recent, err := a.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ok", recent[0].ID)
}

func TestFilter_Match(t *testing.T) {
	e := entries()[0]
	granted := true

	assert.True(t, Filter{}.Match(e))
	assert.True(t, Filter{CallerID: "admin-1", CourseID: "go-101", Kind: core.KindCard, Granted: &granted}.Match(e))
	assert.False(t, Filter{CallerID: "s1"}.Match(e))
	assert.False(t, Filter{Kind: core.KindCertificate}.Match(e))
	assert.False(t, Filter{CallerID: "x"}.Match(core.AuditEntry{}))
}

func TestBuild(t *testing.T) {
	a, err := Build(config.AuditConfig{})
	require.NoError(t, err)
	assert.IsType(t, &NoopAuditor{}, a)

	a, err = Build(config.AuditConfig{Enabled: true, Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryAuditor{}, a)

	_, err = Build(config.AuditConfig{Enabled: true, Type: "kafka"})
	assert.Error(t, err)
}

func TestRingAuditor_Overwrites(t *testing.T) {
	a := NewRingAuditor(2)
	assert.Zero(t, a.Len())

	for _, e := range entries() {
		require.NoError(t, a.Log(e))
	}
	assert.Equal(t, 2, a.Len())

	recent, err := a.GetRecent(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ID)
	assert.Equal(t, "3", recent[1].ID)

	found, err := a.Find(Filter{Action: "template.update"}.Match, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	single := NewRingAuditor(0)
	require.NoError(t, single.Log(core.AuditEntry{ID: "a"}))
	require.NoError(t, single.Log(core.AuditEntry{ID: "b"}))
	recent, err = single.GetRecent(5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].ID)
}

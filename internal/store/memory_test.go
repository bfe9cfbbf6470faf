package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/core"
)

func TestInMemoryArtifactStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryArtifactStore()
	key := core.ArtifactKey{StudentID: "s1", CourseID: "c1", Kind: core.KindCard}

	_, err := s.GetArtifact(ctx, key)
	require.ErrorIs(t, err, core.ErrNotFound)

	first := &core.Artifact{ArtifactKey: key, RenderedRef: "a", Status: core.StatusComplete}
	require.NoError(t, s.CompareAndSwap(ctx, 0, first))
	assert.Equal(t, int64(1), first.Version)

	// stale expectation
	stale := &core.Artifact{ArtifactKey: key, RenderedRef: "b"}
	assert.ErrorIs(t, s.CompareAndSwap(ctx, 0, stale), core.ErrVersionConflict)

	second := &core.Artifact{ArtifactKey: key, RenderedRef: "c", Status: core.StatusComplete}
	require.NoError(t, s.CompareAndSwap(ctx, 1, second))

	got, err := s.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "c", got.RenderedRef)
	assert.Equal(t, int64(2), got.Version)
}

func TestInMemoryArtifactStore_SingleWinnerPerVersion(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryArtifactStore()
	key := core.ArtifactKey{StudentID: "s1", CourseID: "c1", Kind: core.KindCertificate}

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.CompareAndSwap(ctx, 0, &core.Artifact{ArtifactKey: key})
		}()
	}
	wg.Wait()
	close(results)

	var won int
	for err := range results {
		if err == nil {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestInMemoryTemplateStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryTemplateStore()

	tpl := core.Template{
		CourseID: "c1",
		Kind:     core.KindCertificate,
		Fields:   map[string]core.FieldSpec{core.FieldStudentName: {X: 1}},
	}
	require.NoError(t, s.PutTemplate(ctx, tpl))
	tpl.Fields[core.FieldStudentName] = core.FieldSpec{X: 99}

	got, err := s.GetTemplate(ctx, "c1", core.KindCertificate)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Fields[core.FieldStudentName].X)

	_, err = s.GetTemplate(ctx, "c1", core.KindCard)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryDeletionQueue(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryDeletionQueue()

	require.NoError(t, q.Enqueue(ctx, "a", "delete failed"))
	require.NoError(t, q.Enqueue(ctx, "a", "again"))
	require.NoError(t, q.Enqueue(ctx, "b", ""))

	items, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, q.Failed(ctx, "a"))
	items, err = q.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, q.Done(ctx, "a"))
	require.NoError(t, q.Done(ctx, "b"))
	items, err = q.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, q.Failed(ctx, "missing"), core.ErrNotFound)
}

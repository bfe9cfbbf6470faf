package registry

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/store"
)

type countingStore struct {
	*store.InMemoryTemplateStore
	gets atomic.Int32
	err  error
}

func (s *countingStore) GetTemplate(ctx context.Context, courseID string, kind core.Kind) (*core.Template, error) {
	s.gets.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.InMemoryTemplateStore.GetTemplate(ctx, courseID, kind)
}

func newTestRegistry(t *testing.T) (*Registry, *countingStore) {
	t.Helper()
	s := &countingStore{InMemoryTemplateStore: store.NewInMemoryTemplateStore()}
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, err := New(s, 8, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	return r, s
}

func validCard() core.Template {
	return core.Template{
		BackgroundRef: "backgrounds/go-101/card.png",
		Fields: map[string]core.FieldSpec{
			core.FieldStudentName:      {X: 100, Y: 100, FontSize: 24, Align: core.AlignLeft},
			core.FieldIdentifierNumber: {X: 100, Y: 140, FontSize: 16},
			core.FieldCompletionDate:   {X: 100, Y: 180, FontSize: 12},
		},
		PhotoSpec: &core.PhotoSpec{X: 50, Y: 50, Width: 120, Height: 150},
	}
}

func TestPutAndGetTemplate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	stored, err := r.PutTemplate(ctx, "go-101", core.KindCard, validCard())
	require.NoError(t, err)
	assert.Equal(t, "go-101", stored.CourseID)
	assert.Equal(t, core.KindCard, stored.Kind)
	assert.False(t, stored.UpdatedAt.IsZero())

	got, err := r.GetTemplate(ctx, "go-101", core.KindCard)
	require.NoError(t, err)
	if diff := cmp.Diff(*stored, *got); diff != "" {
		t.Errorf("GetTemplate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetTemplate_Missing(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.GetTemplate(context.Background(), "go-101", core.KindCertificate)
	var missing *core.TemplateMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "go-101", missing.CourseID)
	assert.Equal(t, core.KindCertificate, missing.Kind)
}

func TestGetTemplate_StoreFailure(t *testing.T) {
	r, s := newTestRegistry(t)
	s.err = errors.New("connection refused")

	_, err := r.GetTemplate(context.Background(), "go-101", core.KindCard)
	var unavailable *core.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestGetTemplate_Cached(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	_, err := r.PutTemplate(ctx, "go-101", core.KindCard, validCard())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := r.GetTemplate(ctx, "go-101", core.KindCard)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), s.gets.Load())
}

func TestPutTemplate_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	_, err := r.PutTemplate(ctx, "go-101", core.KindCard, validCard())
	require.NoError(t, err)
	_, err = r.GetTemplate(ctx, "go-101", core.KindCard)
	require.NoError(t, err)

	updated := validCard()
	updated.BackgroundRef = "backgrounds/go-101/card-v2.png"
	_, err = r.PutTemplate(ctx, "go-101", core.KindCard, updated)
	require.NoError(t, err)

	got, err := r.GetTemplate(ctx, "go-101", core.KindCard)
	require.NoError(t, err)
	assert.Equal(t, "backgrounds/go-101/card-v2.png", got.BackgroundRef)
}

func TestGetTemplate_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	_, err := r.PutTemplate(ctx, "go-101", core.KindCard, validCard())
	require.NoError(t, err)

	first, err := r.GetTemplate(ctx, "go-101", core.KindCard)
	require.NoError(t, err)
	first.Fields[core.FieldStudentName] = core.FieldSpec{X: 1}
	first.PhotoSpec.Width = 1

	second, err := r.GetTemplate(ctx, "go-101", core.KindCard)
	require.NoError(t, err)
	assert.Equal(t, 100, second.Fields[core.FieldStudentName].X)
	assert.Equal(t, 120, second.PhotoSpec.Width)
}

func TestPutTemplate_CertificateDropsPhotoSpec(t *testing.T) {
	r, _ := newTestRegistry(t)

	stored, err := r.PutTemplate(context.Background(), "go-101", core.KindCertificate, validCard())
	require.NoError(t, err)
	assert.Nil(t, stored.PhotoSpec)
}

func TestPutTemplate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		kind      core.Kind
		mutate    func(tpl *core.Template)
		wantField string
	}{
		{
			name:      "Card without photo spec",
			kind:      core.KindCard,
			mutate:    func(tpl *core.Template) { tpl.PhotoSpec = nil },
			wantField: "photo_spec",
		},
		{
			name:      "Card with empty photo rectangle",
			kind:      core.KindCard,
			mutate:    func(tpl *core.Template) { tpl.PhotoSpec.Width = 0 },
			wantField: "photo_spec",
		},
		{
			name: "Negative font size",
			kind: core.KindCertificate,
			mutate: func(tpl *core.Template) {
				tpl.Fields[core.FieldStudentName] = core.FieldSpec{FontSize: -1}
			},
			wantField: "fields.studentName.font_size",
		},
		{
			name: "NaN font size",
			kind: core.KindCertificate,
			mutate: func(tpl *core.Template) {
				tpl.Fields[core.FieldStudentName] = core.FieldSpec{FontSize: math.NaN()}
			},
			wantField: "fields.studentName.font_size",
		},
		{
			name: "Infinite font size",
			kind: core.KindCard,
			mutate: func(tpl *core.Template) {
				tpl.Fields[core.FieldStudentName] = core.FieldSpec{FontSize: math.Inf(1)}
			},
			wantField: "fields.studentName.font_size",
		},
		{
			name: "Unknown alignment",
			kind: core.KindCard,
			mutate: func(tpl *core.Template) {
				tpl.Fields[core.FieldStudentName] = core.FieldSpec{FontSize: 10, Align: "justify"}
			},
			wantField: "fields.studentName.align",
		},
		{
			name:      "Card without identifier placement",
			kind:      core.KindCard,
			mutate:    func(tpl *core.Template) { delete(tpl.Fields, core.FieldIdentifierNumber) },
			wantField: "fields.identifierNumber",
		},
		{
			name:      "Certificate without completion date placement",
			kind:      core.KindCertificate,
			mutate:    func(tpl *core.Template) { delete(tpl.Fields, core.FieldCompletionDate) },
			wantField: "fields.completionDate",
		},
		{
			name:      "No placements at all",
			kind:      core.KindCertificate,
			mutate:    func(tpl *core.Template) { tpl.Fields = nil },
			wantField: "fields.studentName",
		},
		{
			name:      "Missing background",
			kind:      core.KindCard,
			mutate:    func(tpl *core.Template) { tpl.BackgroundRef = " " },
			wantField: "background_ref",
		},
		{
			name:      "Unknown kind",
			kind:      core.Kind("badge"),
			mutate:    func(tpl *core.Template) {},
			wantField: "kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, s := newTestRegistry(t)

			tpl := validCard()
			tt.mutate(&tpl)
			_, err := r.PutTemplate(ctx, "go-101", tt.kind, tpl)

			var validationErr *core.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)

			// nothing was stored
			_, err = s.InMemoryTemplateStore.GetTemplate(ctx, "go-101", tt.kind)
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestPutTemplate_OpenFieldSet(t *testing.T) {
	r, _ := newTestRegistry(t)

	tpl := validCard()
	tpl.Fields["graduationHonors"] = core.FieldSpec{X: 10, Y: 10, FontSize: 9}

	stored, err := r.PutTemplate(context.Background(), "go-101", core.KindCard, tpl)
	require.NoError(t, err)
	assert.Contains(t, stored.Fields, "graduationHonors")
}

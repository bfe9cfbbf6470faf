package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/audit"
	"github.com/darmiel/kartei/internal/blob"
	"github.com/darmiel/kartei/internal/composer"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/guard"
	"github.com/darmiel/kartei/internal/logging"
	"github.com/darmiel/kartei/internal/ratelimit"
	"github.com/darmiel/kartei/internal/registry"
	"github.com/darmiel/kartei/internal/store"
)

const (
	adminToken = "admin-token"
	anaToken   = "ana-token"
	bobToken   = "bob-token"

	courseID = "go-101"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mapProvider map[string]*core.Caller

func (m mapProvider) Name() string { return "map" }

func (m mapProvider) Resolve(_ context.Context, credential string) (*core.Caller, error) {
	c, ok := m[credential]
	if !ok {
		return nil, &core.AuthenticationError{Reason: "unknown token"}
	}
	return c, nil
}

var callers = mapProvider{
	adminToken: {ID: "root", Role: core.RoleAdmin},
	anaToken:   {ID: "ana", Role: core.RoleStudent},
	bobToken:   {ID: "bob", Role: core.RoleStudent},
}

// flakyBlobs fails deletions on demand.
type flakyBlobs struct {
	*blob.Memory
	failDeletes    atomic.Bool
	missingDeletes atomic.Bool
}

func (f *flakyBlobs) Delete(ctx context.Context, ref string) error {
	if f.failDeletes.Load() {
		return errors.New("storage offline")
	}
	if f.missingDeletes.Load() {
		return fmt.Errorf("deleting '%s': %w", ref, core.ErrNotFound)
	}
	return f.Memory.Delete(ctx, ref)
}

func (f *flakyBlobs) keysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range f.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

type countingComposer struct {
	inner *composer.Composer
	calls atomic.Int32
}

func (c *countingComposer) Compose(in composer.Input) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.Compose(in)
}

type fixture struct {
	svc       *IssuanceService
	registry  *registry.Registry
	records   *store.InMemoryRecordStore
	artifacts *store.InMemoryArtifactStore
	deletions *store.InMemoryDeletionQueue
	blobs     *flakyBlobs
	composer  *countingComposer
	auditor   *audit.InMemoryAuditor
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		records:   store.NewInMemoryRecordStore(),
		artifacts: store.NewInMemoryArtifactStore(),
		deletions: store.NewInMemoryDeletionQueue(),
		blobs:     &flakyBlobs{Memory: blob.NewMemory()},
		composer:  &countingComposer{inner: composer.New()},
		auditor:   audit.NewInMemoryAuditor(),
	}

	reg, err := registry.New(store.NewInMemoryTemplateStore(), 0)
	require.NoError(t, err)
	f.registry = reg

	require.NoError(t, f.records.PutCourse(ctx, core.Course{ID: courseID, Title: "Go Basics", UnlockDelayDays: 7}))
	for _, id := range []string{"ana", "bob"} {
		require.NoError(t, f.records.PutEnrollment(ctx, core.Enrollment{
			StudentID:  id,
			CourseID:   courseID,
			EnrolledAt: testNow.Add(-10 * 24 * time.Hour),
		}))
		require.NoError(t, f.records.PutProfile(ctx, core.Profile{
			StudentID:        id,
			Name:             strings.ToUpper(id[:1]) + id[1:],
			IdentifierNumber: "ID-" + id,
		}))
	}

	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	svc, err := NewIssuanceService(Dependencies{
		Guard:       guard.New(callers),
		Templates:   reg,
		Enrollments: f.records,
		Profiles:    f.records,
		Artifacts:   f.artifacts,
		Blobs:       f.blobs,
		Deletions:   f.deletions,
		Composer:    f.composer,
		Auditor:     f.auditor,
	}, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// withTemplate stores a background and a template for kind.
func (f *fixture) withTemplate(t *testing.T, kind core.Kind) {
	t.Helper()
	ctx := context.Background()
	bgRef, err := f.blobs.Put(ctx, fmt.Sprintf("backgrounds/%s/%s.png", courseID, kind),
		solidPNG(t, 400, 250, color.White), "image/png")
	require.NoError(t, err)

	tpl := core.Template{
		BackgroundRef: bgRef,
		Fields: map[string]core.FieldSpec{
			core.FieldStudentName:      {X: 180, Y: 60, FontSize: 18},
			core.FieldIdentifierNumber: {X: 180, Y: 80, FontSize: 12},
			core.FieldIssueDate:        {X: 180, Y: 100, FontSize: 12},
		},
	}
	if kind == core.KindCard {
		tpl.PhotoSpec = &core.PhotoSpec{X: 10, Y: 10, Width: 120, Height: 150}
	} else {
		tpl.Fields[core.FieldCompletionDate] = core.FieldSpec{X: 180, Y: 140, FontSize: 12}
	}
	_, err = f.registry.PutTemplate(ctx, courseID, kind, tpl)
	require.NoError(t, err)
}

func cardRequest(t *testing.T, credential, student string, withPhoto bool) ArtifactRequest {
	req := ArtifactRequest{
		Credential: credential,
		StudentID:  student,
		CourseID:   courseID,
		Kind:       core.KindCard,
	}
	if withPhoto {
		req.Photo = solidPNG(t, 60, 80, color.NRGBA{R: 200, A: 255})
	}
	return req
}

func TestRequestArtifact_Card(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)

	a, err := f.svc.RequestArtifact(context.Background(), cardRequest(t, anaToken, "ana", true))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, core.StatusComplete, a.Status)
	assert.Equal(t, testNow, a.GeneratedAt)
	assert.True(t, strings.HasPrefix(a.RenderedRef, "artifacts/ana/go-101/card/"))
	assert.True(t, strings.HasPrefix(a.SourcePhotoRef, "photos/ana/go-101/card/"))
	assert.True(t, strings.HasSuffix(a.SourcePhotoRef, ".png"))

	rendered, err := f.blobs.Get(context.Background(), a.RenderedRef)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(rendered))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 400, cfg.Width)

	stored, err := f.artifacts.GetArtifact(context.Background(), a.ArtifactKey)
	require.NoError(t, err)
	assert.Equal(t, a.RenderedRef, stored.RenderedRef)

	entries, err := f.auditor.GetRecent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionArtifactRequest, entries[0].Action)
	assert.True(t, entries[0].Granted)
	assert.Equal(t, "ok", entries[0].Outcome)
	assert.Equal(t, a.RenderedRef, entries[0].RenderedRef)
}

func TestRequestArtifact_Denied(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		wantErr    any
		status     int
	}{
		{name: "Other student", credential: bobToken, wantErr: &core.PermissionError{}, status: http.StatusForbidden},
		{name: "Unknown credential", credential: "nope", wantErr: &core.AuthenticationError{}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.withTemplate(t, core.KindCard)
			before := f.blobs.Keys()

			_, err := f.svc.RequestArtifact(context.Background(), cardRequest(t, tt.credential, "ana", true))
			require.Error(t, err)
			assert.IsType(t, tt.wantErr, err)
			assert.Equal(t, tt.status, StatusFor(err))

			assert.Zero(t, f.composer.calls.Load())
			assert.Equal(t, before, f.blobs.Keys())
			_, err = f.artifacts.GetArtifact(context.Background(), core.ArtifactKey{StudentID: "ana", CourseID: courseID, Kind: core.KindCard})
			assert.ErrorIs(t, err, core.ErrNotFound)

			entries, err := f.auditor.GetRecent(1)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.False(t, entries[0].Granted)
		})
	}
}

func TestRequestArtifact_AdminOnBehalf(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)

	a, err := f.svc.RequestArtifact(context.Background(), ArtifactRequest{
		Credential: adminToken,
		StudentID:  "ana",
		CourseID:   courseID,
		Kind:       core.KindCertificate,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", a.StudentID)

	entries, err := f.auditor.GetRecent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Metadata["on_behalf"])
}

func TestRequestArtifact_TemplateMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestArtifact(context.Background(), cardRequest(t, anaToken, "ana", true))
	var missing *core.TemplateMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, http.StatusNotFound, StatusFor(err))
	assert.Equal(t, "template_missing", Code(err))
	assert.Empty(t, f.blobs.Keys())
	assert.Zero(t, f.composer.calls.Load())
}

func TestRequestArtifact_NotYetAvailable(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)
	require.NoError(t, f.records.PutEnrollment(context.Background(), core.Enrollment{
		StudentID:  "ana",
		CourseID:   courseID,
		EnrolledAt: testNow.Add(-2 * 24 * time.Hour),
	}))

	_, err := f.svc.RequestArtifact(context.Background(), cardRequest(t, anaToken, "ana", true))
	var notYet *core.NotYetAvailableError
	require.ErrorAs(t, err, &notYet)
	assert.Equal(t, 5, notYet.DaysRemaining)
	assert.Equal(t, testNow.Add(5*24*time.Hour), notYet.AvailableAt)
	assert.Equal(t, http.StatusAccepted, StatusFor(err))
	assert.Zero(t, f.composer.calls.Load())
	assert.Empty(t, f.blobs.keysWithPrefix("artifacts/"))
}

func TestRequestArtifact_NotEnrolled(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)

	_, err := f.svc.RequestArtifact(context.Background(), ArtifactRequest{
		Credential: adminToken,
		StudentID:  "carol",
		CourseID:   courseID,
		Kind:       core.KindCard,
	})
	var notEnrolled *core.NotEnrolledError
	require.ErrorAs(t, err, &notEnrolled)
	assert.Equal(t, "carol", notEnrolled.StudentID)
	assert.Equal(t, http.StatusNotFound, StatusFor(err))
}

func TestRequestArtifact_InvalidInput(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)

	t.Run("Unknown kind", func(t *testing.T) {
		req := cardRequest(t, anaToken, "ana", false)
		req.Kind = "diploma"
		_, err := f.svc.RequestArtifact(context.Background(), req)
		assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
	})

	t.Run("Photo is not an image", func(t *testing.T) {
		req := cardRequest(t, anaToken, "ana", false)
		req.Photo = []byte("definitely not a png")
		_, err := f.svc.RequestArtifact(context.Background(), req)
		var validation *core.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "photo", validation.Field)
		assert.Zero(t, f.composer.calls.Load())
	})
}

func TestRequestArtifact_MissingPhoto(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)

	_, err := f.svc.RequestArtifact(context.Background(), cardRequest(t, anaToken, "ana", false))
	var missing *core.MissingPhotoError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
	assert.Zero(t, f.composer.calls.Load())
}

func TestRequestArtifact_MissingProfile(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()
	require.NoError(t, f.records.PutEnrollment(ctx, core.Enrollment{
		StudentID:  "dave",
		CourseID:   courseID,
		EnrolledAt: testNow.Add(-30 * 24 * time.Hour),
	}))

	_, err := f.svc.RequestArtifact(ctx, ArtifactRequest{
		Credential: adminToken,
		StudentID:  "dave",
		CourseID:   courseID,
		Kind:       core.KindCertificate,
	})
	var compErr *core.CompositionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "profile", compErr.Field)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))
}

func TestRequestArtifact_ProfilePhotoFallback(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)
	ctx := context.Background()

	photoRef, err := f.blobs.Put(ctx, "profiles/ana.png", solidPNG(t, 30, 40, color.Black), "image/png")
	require.NoError(t, err)
	require.NoError(t, f.records.PutProfile(ctx, core.Profile{StudentID: "ana", Name: "Ana", IdentifierNumber: "1", PhotoRef: photoRef}))

	first, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", false))
	require.NoError(t, err)
	assert.Equal(t, photoRef, first.SourcePhotoRef)

	// a fresh upload replaces the pointer but never deletes the profile portrait
	second, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", true))
	require.NoError(t, err)
	assert.NotEqual(t, photoRef, second.SourcePhotoRef)

	_, err = f.blobs.Get(ctx, photoRef)
	assert.NoError(t, err)
	_, err = f.blobs.Get(ctx, first.RenderedRef)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRequestArtifact_Regenerate(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)
	ctx := context.Background()

	first, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", true))
	require.NoError(t, err)

	t.Run("Previous photo is reused", func(t *testing.T) {
		second, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", false))
		require.NoError(t, err)

		assert.Equal(t, int64(2), second.Version)
		assert.NotEqual(t, first.RenderedRef, second.RenderedRef)
		assert.Equal(t, first.SourcePhotoRef, second.SourcePhotoRef)

		_, err = f.blobs.Get(ctx, first.RenderedRef)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Equal(t, []string{second.RenderedRef}, f.blobs.keysWithPrefix("artifacts/"))
		assert.Equal(t, []string{first.SourcePhotoRef}, f.blobs.keysWithPrefix("photos/"))
		first = second
	})

	t.Run("Fresh photo replaces previous photo", func(t *testing.T) {
		third, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", true))
		require.NoError(t, err)

		assert.Equal(t, int64(3), third.Version)
		assert.NotEqual(t, first.SourcePhotoRef, third.SourcePhotoRef)
		assert.Equal(t, []string{third.RenderedRef}, f.blobs.keysWithPrefix("artifacts/"))
		assert.Equal(t, []string{third.SourcePhotoRef}, f.blobs.keysWithPrefix("photos/"))
	})
}

func TestRequestArtifact_ConcurrentRequestsLeaveOneArtifact(t *testing.T) {
	f := newFixture(t, WithCommitRetries(32), WithComposeWorkers(2))
	f.withTemplate(t, core.KindCertificate)

	const n = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestArtifact(context.Background(), ArtifactRequest{
				Credential: anaToken,
				StudentID:  "ana",
				CourseID:   courseID,
				Kind:       core.KindCertificate,
			})
			if err == nil {
				succeeded.Add(1)
				return
			}
			var conflict *core.ConflictError
			assert.ErrorAs(t, err, &conflict)
		}()
	}
	wg.Wait()

	require.Positive(t, succeeded.Load())
	all, err := f.artifacts.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	a, err := f.artifacts.GetArtifact(context.Background(), core.ArtifactKey{StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate})
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded.Load()), a.Version)
	assert.Equal(t, []string{a.RenderedRef}, f.blobs.keysWithPrefix("artifacts/"))
}

// racingArtifacts runs race once, right before the first compare-and-swap.
type racingArtifacts struct {
	*store.InMemoryArtifactStore
	once sync.Once
	race func()
}

func (r *racingArtifacts) CompareAndSwap(ctx context.Context, expectedVersion int64, next *core.Artifact) error {
	r.once.Do(r.race)
	return r.InMemoryArtifactStore.CompareAndSwap(ctx, expectedVersion, next)
}

func TestRequestArtifact_ReusedPhotoSurvivesLostRace(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)
	ctx := context.Background()
	key := core.ArtifactKey{StudentID: "ana", CourseID: courseID, Kind: core.KindCard}

	first, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", true))
	require.NoError(t, err)
	original, err := f.blobs.Get(ctx, first.SourcePhotoRef)
	require.NoError(t, err)

	// another request uploads a new photo, wins the pointer and deletes the old photo
	f.svc.artifacts = &racingArtifacts{
		InMemoryArtifactStore: f.artifacts,
		race: func() {
			photoRef, err := f.blobs.Put(ctx, "photos/ana/go-101/card/winner.png", solidPNG(t, 10, 10, color.White), "image/png")
			require.NoError(t, err)
			renderRef, err := f.blobs.Put(ctx, "artifacts/ana/go-101/card/winner.png", []byte("render"), composer.ContentType)
			require.NoError(t, err)
			require.NoError(t, f.artifacts.CompareAndSwap(ctx, first.Version, &core.Artifact{
				ArtifactKey:    key,
				RenderedRef:    renderRef,
				SourcePhotoRef: photoRef,
				Status:         core.StatusComplete,
			}))
			require.NoError(t, f.blobs.Delete(ctx, first.SourcePhotoRef))
			require.NoError(t, f.blobs.Delete(ctx, first.RenderedRef))
		},
	}

	a, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", false))
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Version)
	assert.NotEqual(t, first.SourcePhotoRef, a.SourcePhotoRef)

	stored, err := f.blobs.Get(ctx, a.SourcePhotoRef)
	require.NoError(t, err, "committed photo must exist")
	assert.Equal(t, original, stored)

	assert.Equal(t, []string{a.SourcePhotoRef}, f.blobs.keysWithPrefix("photos/"))
	assert.Equal(t, []string{a.RenderedRef}, f.blobs.keysWithPrefix("artifacts/"))
}

func TestRequestArtifact_EmptyProfileName(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCard)
	ctx := context.Background()
	require.NoError(t, f.records.PutProfile(ctx, core.Profile{StudentID: "ana", Name: "", IdentifierNumber: "ID-ana"}))
	before := f.blobs.Keys()

	_, err := f.svc.RequestArtifact(ctx, cardRequest(t, anaToken, "ana", true))
	var compErr *core.CompositionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, core.FieldStudentName, compErr.Field)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))

	assert.Equal(t, before, f.blobs.Keys())
	_, err = f.artifacts.GetArtifact(ctx, core.ArtifactKey{StudentID: "ana", CourseID: courseID, Kind: core.KindCard})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRequestArtifact_PixelLimit(t *testing.T) {
	f := newFixture(t, WithMaxImagePixels(50*50))
	f.withTemplate(t, core.KindCard)
	ctx := context.Background()

	req := cardRequest(t, anaToken, "ana", false)
	req.Photo = solidPNG(t, 60, 80, color.Black)
	_, err := f.svc.RequestArtifact(ctx, req)
	var validation *core.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "photo", validation.Field)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
	assert.Zero(t, f.composer.calls.Load())
	assert.Empty(t, f.blobs.keysWithPrefix("photos/"))

	_, err = f.svc.UploadBackground(ctx, adminToken, courseID, core.KindCard, solidPNG(t, 51, 50, color.White))
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "background", validation.Field)

	_, err = f.svc.UploadBackground(ctx, adminToken, courseID, core.KindCard, solidPNG(t, 50, 50, color.White))
	assert.NoError(t, err)
}

func TestRequestArtifact_MisconfiguredDelay(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()

	for _, delay := range []int{-1, 200000} {
		require.NoError(t, f.records.PutCourse(ctx, core.Course{ID: courseID, UnlockDelayDays: delay}))

		_, err := f.svc.RequestArtifact(ctx, ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate})
		var validation *core.ValidationError
		require.ErrorAs(t, err, &validation, "delay=%d", delay)
		assert.Equal(t, "unlock_delay_days", validation.Field)
		assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
		assert.Zero(t, f.composer.calls.Load())
	}
}

func TestRequestArtifact_SupersededBlobAlreadyGone(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()
	req := ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate}

	_, err := f.svc.RequestArtifact(ctx, req)
	require.NoError(t, err)

	f.blobs.missingDeletes.Store(true)
	_, err = f.svc.RequestArtifact(ctx, req)
	require.NoError(t, err)

	pending, err := f.deletions.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestArtifact_FailedDeletionIsQueued(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()
	req := ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate}

	first, err := f.svc.RequestArtifact(ctx, req)
	require.NoError(t, err)

	f.blobs.failDeletes.Store(true)
	second, err := f.svc.RequestArtifact(ctx, req)
	require.NoError(t, err, "a failed cleanup must not fail the request")

	pending, err := f.deletions.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.RenderedRef, pending[0].Ref)

	gc := BlobGC(f.deletions, f.blobs, nil, 10)
	assert.Error(t, gc(ctx, logging.NopLogger{}))
	pending, err = f.deletions.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	f.blobs.failDeletes.Store(false)
	require.NoError(t, gc(ctx, logging.NopLogger{}))
	pending, err = f.deletions.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, []string{second.RenderedRef}, f.blobs.keysWithPrefix("artifacts/"))
}

func TestRequestArtifact_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	f.svc.limiter = ratelimit.NewPerCaller(0.001, 1)
	req := ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate}

	_, err := f.svc.RequestArtifact(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.RequestArtifact(context.Background(), req)
	var limited *core.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Positive(t, limited.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(err))
}

func TestRequestArtifact_CancelledBeforeCompose(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.RequestArtifact(ctx, ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.blobs.keysWithPrefix("artifacts/"))
}

func TestFieldValues(t *testing.T) {
	f := newFixture(t)
	profile := &core.Profile{StudentID: "ana", Name: "Ana", IdentifierNumber: "42"}
	course := &core.Course{ID: courseID, Title: "Go Basics"}
	completed := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	override := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		req        ArtifactRequest
		enrollment core.Enrollment
		want       string
	}{
		{name: "Request overrides", req: ArtifactRequest{Kind: core.KindCertificate, CompletionDate: &override}, enrollment: core.Enrollment{CompletedAt: &completed}, want: "2026-01-31"},
		{name: "Enrollment completion", req: ArtifactRequest{Kind: core.KindCertificate}, enrollment: core.Enrollment{CompletedAt: &completed}, want: "2026-02-14"},
		{name: "Falls back to today", req: ArtifactRequest{Kind: core.KindCertificate}, want: "2026-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := f.svc.fieldValues(tt.req, profile, course, &tt.enrollment, testNow)
			assert.Equal(t, tt.want, values[core.FieldCompletionDate])
			assert.Equal(t, "Ana", values[core.FieldStudentName])
			assert.Equal(t, "42", values[core.FieldIdentifierNumber])
			assert.Equal(t, "Go Basics", values[core.FieldCourseName])
			assert.Equal(t, "2026-03-01", values[core.FieldIssueDate])
		})
	}

	card := f.svc.fieldValues(ArtifactRequest{Kind: core.KindCard}, profile, course, &core.Enrollment{}, testNow)
	assert.NotContains(t, card, core.FieldCompletionDate)
}

func TestRequestTemplateUpdate(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()

	before, err := f.registry.GetTemplate(ctx, courseID, core.KindCertificate)
	require.NoError(t, err)

	next := before.Clone()
	next.BackgroundRef = "backgrounds/other.png"

	t.Run("Student is denied", func(t *testing.T) {
		_, err := f.svc.RequestTemplateUpdate(ctx, anaToken, courseID, core.KindCertificate, next)
		var permErr *core.PermissionError
		require.ErrorAs(t, err, &permErr)

		current, err := f.registry.GetTemplate(ctx, courseID, core.KindCertificate)
		require.NoError(t, err)
		assert.Equal(t, before.BackgroundRef, current.BackgroundRef)
	})

	t.Run("Admin replaces", func(t *testing.T) {
		stored, err := f.svc.RequestTemplateUpdate(ctx, adminToken, courseID, core.KindCertificate, next)
		require.NoError(t, err)
		assert.Equal(t, "root", stored.UpdatedBy)

		current, err := f.svc.GetTemplate(ctx, adminToken, courseID, core.KindCertificate)
		require.NoError(t, err)
		assert.Equal(t, "backgrounds/other.png", current.BackgroundRef)
	})

	t.Run("Invalid template", func(t *testing.T) {
		_, err := f.svc.RequestTemplateUpdate(ctx, adminToken, courseID, core.KindCard, core.Template{BackgroundRef: "bg.png"})
		assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
	})

	entries, err := f.auditor.Find(func(e core.AuditEntry) bool { return e.Action == ActionTemplateUpdate }, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestGetArtifactImage(t *testing.T) {
	f := newFixture(t)
	f.withTemplate(t, core.KindCertificate)
	ctx := context.Background()
	key := core.ArtifactKey{StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate}

	_, err := f.svc.GetArtifact(ctx, anaToken, key)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, "not_found", Code(err))

	a, err := f.svc.RequestArtifact(ctx, ArtifactRequest{Credential: anaToken, StudentID: "ana", CourseID: courseID, Kind: core.KindCertificate})
	require.NoError(t, err)

	img, err := f.svc.GetArtifactImage(ctx, anaToken, key)
	require.NoError(t, err)
	assert.Equal(t, composer.ContentType, img.ContentType)
	assert.Equal(t, a.RenderedRef, img.Artifact.RenderedRef)
	assert.NotEmpty(t, img.Data)

	_, err = f.svc.GetArtifactImage(ctx, bobToken, key)
	var permErr *core.PermissionError
	assert.ErrorAs(t, err, &permErr)
}

func TestGetEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.records.PutEnrollment(ctx, core.Enrollment{
		StudentID:  "bob",
		CourseID:   courseID,
		EnrolledAt: testNow.Add(-36 * time.Hour),
	}))

	view, err := f.svc.GetEligibility(ctx, bobToken, "bob", courseID)
	require.NoError(t, err)
	assert.False(t, view.Eligible)
	assert.Equal(t, 6, view.DaysRemaining)

	view, err = f.svc.GetEligibility(ctx, anaToken, "ana", courseID)
	require.NoError(t, err)
	assert.True(t, view.Eligible)
	assert.Zero(t, view.DaysRemaining)

	_, err = f.svc.GetEligibility(ctx, anaToken, "bob", courseID)
	assert.Equal(t, http.StatusForbidden, StatusFor(err))
}

func TestUploadBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.svc.UploadBackground(ctx, adminToken, courseID, core.KindCard, solidPNG(t, 20, 10, color.White))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "backgrounds/go-101/card/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	_, err = f.svc.UploadBackground(ctx, adminToken, courseID, core.KindCard, []byte("text"))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))

	_, err = f.svc.UploadBackground(ctx, anaToken, courseID, core.KindCard, solidPNG(t, 20, 10, color.White))
	assert.Equal(t, http.StatusForbidden, StatusFor(err))

	_, err = f.svc.UploadBackground(ctx, adminToken, courseID, core.KindCard, make([]byte, maxBackgroundSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(err))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: &core.AuthenticationError{Reason: "x"}, status: 401, code: "not_authenticated"},
		{err: &core.PermissionError{Reason: "x"}, status: 403, code: "permission_denied"},
		{err: &core.NotYetAvailableError{DaysRemaining: 2}, status: 202, code: "not_yet_available"},
		{err: &core.NotEnrolledError{}, status: 404, code: "not_enrolled"},
		{err: &core.TemplateMissingError{}, status: 404, code: "template_missing"},
		{err: &core.MissingPhotoError{}, status: 422, code: "missing_photo"},
		{err: &core.ValidationError{Reason: "x"}, status: 422, code: "invalid_input"},
		{err: &core.ConflictError{}, status: 409, code: "conflict"},
		{err: &core.RateLimitedError{RetryAfter: time.Second}, status: 429, code: "rate_limited"},
		{err: &core.UnavailableError{Op: "x", Err: errors.New("down")}, status: 503, code: "unavailable"},
		{err: &core.CompositionError{Reason: "x"}, status: 500, code: "composition_failed"},
		{err: fmt.Errorf("artifact: %w", core.ErrNotFound), status: 404, code: "not_found"},
		{err: errors.New("boom"), status: 500, code: "internal"},
		{err: fmt.Errorf("wrapped: %w", &core.PermissionError{Reason: "x"}), status: 403, code: "permission_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusFor(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/darmiel/kartei/internal/composer"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/eligibility"
)

// photoSource is the portrait used for a card render.
type photoSource struct {
	data []byte
	// ref is set when the photo already lives in the blob store.
	ref string
	// fresh photos are persisted together with the render
	fresh bool
	// ext is the file extension for fresh photos
	ext string
}

// RequestArtifact renders and commits the current artifact of a student.
// Nothing is written before the render succeeded. A failure before the
// pointer flip leaves the previous artifact (or none) in place.
func (s *IssuanceService) RequestArtifact(ctx context.Context, req ArtifactRequest) (artifact *core.Artifact, err error) {
	key := core.ArtifactKey{StudentID: req.StudentID, CourseID: req.CourseID, Kind: req.Kind}
	logger := loggerWith(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("student", key.StudentID).Str("course", key.CourseID).Str("kind", string(key.Kind))
	})

	entry := s.newAuditEntry(ctx, ActionArtifactRequest)
	entry.StudentID = key.StudentID
	entry.CourseID = key.CourseID
	entry.Kind = key.Kind
	defer func() {
		finishAudit(&entry, err)
		if artifact != nil {
			entry.RenderedRef = artifact.RenderedRef
		}
		s.audit(ctx, entry)
		s.metrics.ArtifactRequest(string(key.Kind), outcomeFor(err))
		logOutcome(logger, err, "artifact.request")
	}()

	caller, err := s.guard.Authorize(ctx, req.Credential, core.CapGenerateArtifact, key.StudentID)
	entry.Caller = caller
	if caller != nil {
		logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("sub", caller.ID)
		})
	}
	if err != nil {
		return nil, err
	}
	if caller.ID != key.StudentID {
		entry.Metadata = map[string]any{"on_behalf": true}
	}
	if err := s.limiter.Allow(caller.ID); err != nil {
		return nil, err
	}
	if _, err := core.ParseKind(string(key.Kind)); err != nil {
		return nil, err
	}
	if key.CourseID == "" {
		return nil, &core.ValidationError{Field: "course_id", Reason: "must not be empty"}
	}

	enrollment, course, gate, err := s.evaluate(ctx, key.StudentID, key.CourseID)
	if err != nil {
		return nil, err
	}
	if !gate.Eligible {
		return nil, &core.NotYetAvailableError{AvailableAt: gate.AvailableAt, DaysRemaining: gate.DaysRemaining}
	}

	tpl, err := s.templates.GetTemplate(ctx, key.CourseID, key.Kind)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, key.StudentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.CompositionError{Field: "profile", Reason: "student has no profile record"}
		}
		return nil, &core.UnavailableError{Op: "loading profile", Err: err}
	}

	previous, err := s.currentArtifact(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	values := s.fieldValues(req, profile, course, enrollment, now)

	var photo *photoSource
	if key.Kind == core.KindCard {
		photo, err = s.resolvePhoto(ctx, req.Photo, previous, profile)
		if err != nil {
			return nil, err
		}
	}

	rendered, err := s.compose(ctx, composer.Input{
		Template: *tpl,
		Values:   values,
		Photo:    photoBytes(photo),
	}, tpl.BackgroundRef, string(key.Kind))
	if err != nil {
		return nil, err
	}

	return s.commit(ctx, logger, key, rendered, photo, previous, profile, now)
}

// evaluate loads enrollment and course and runs the eligibility gate.
func (s *IssuanceService) evaluate(ctx context.Context, studentID, courseID string) (*core.Enrollment, *core.Course, eligibility.Result, error) {
	enrollment, err := s.enrollments.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil, eligibility.Result{}, &core.NotEnrolledError{StudentID: studentID, CourseID: courseID}
		}
		return nil, nil, eligibility.Result{}, &core.UnavailableError{Op: "loading enrollment", Err: err}
	}
	course, err := s.enrollments.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil, eligibility.Result{}, &core.NotEnrolledError{StudentID: studentID, CourseID: courseID}
		}
		return nil, nil, eligibility.Result{}, &core.UnavailableError{Op: "loading course", Err: err}
	}
	gate, err := eligibility.Evaluate(enrollment.EnrolledAt, course.UnlockDelayDays, s.now())
	if err != nil {
		return nil, nil, eligibility.Result{}, fmt.Errorf("course '%s' misconfigured: %w", courseID, err)
	}
	return enrollment, course, gate, nil
}

func (s *IssuanceService) currentArtifact(ctx context.Context, key core.ArtifactKey) (*core.Artifact, error) {
	a, err := s.artifacts.GetArtifact(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &core.UnavailableError{Op: "loading artifact", Err: err}
	}
	return a, nil
}

func (s *IssuanceService) fieldValues(
	req ArtifactRequest,
	profile *core.Profile,
	course *core.Course,
	enrollment *core.Enrollment,
	now time.Time,
) map[string]string {
	values := map[string]string{
		core.FieldStudentName:      profile.Name,
		core.FieldIdentifierNumber: profile.IdentifierNumber,
		core.FieldIssueDate:        now.Format(DateLayout),
	}
	if course.Title != "" {
		values[core.FieldCourseName] = course.Title
	}
	if req.Kind == core.KindCertificate {
		completed := now
		switch {
		case req.CompletionDate != nil:
			completed = *req.CompletionDate
		case enrollment.CompletedAt != nil:
			completed = *enrollment.CompletedAt
		}
		values[core.FieldCompletionDate] = completed.UTC().Format(DateLayout)
	}
	return values
}

// resolvePhoto picks the fresh upload, then the photo of the current card,
// then the profile portrait.
func (s *IssuanceService) resolvePhoto(
	ctx context.Context,
	fresh []byte,
	previous *core.Artifact,
	profile *core.Profile,
) (*photoSource, error) {
	if len(fresh) > 0 {
		format, err := s.inspectUpload("photo", fresh)
		if err != nil {
			return nil, err
		}
		return &photoSource{data: fresh, fresh: true, ext: format}, nil
	}

	var candidates []string
	if previous != nil && previous.SourcePhotoRef != "" {
		candidates = append(candidates, previous.SourcePhotoRef)
	}
	if profile.PhotoRef != "" {
		candidates = append(candidates, profile.PhotoRef)
	}
	for _, ref := range candidates {
		data, err := s.blobs.Get(ctx, ref)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &core.UnavailableError{Op: "loading stored photo", Err: err}
		}
		format, err := composer.Inspect(data, 0)
		if err != nil {
			return nil, &core.CompositionError{Field: "photo", Reason: fmt.Sprintf("stored photo '%s' is not a supported image", ref), Err: err}
		}
		return &photoSource{data: data, ref: ref, ext: format}, nil
	}
	return nil, &core.MissingPhotoError{StudentID: profile.StudentID}
}

// inspectUpload returns the image format of an upload and enforces the pixel limit.
func (s *IssuanceService) inspectUpload(field string, data []byte) (string, error) {
	format, err := composer.Inspect(data, s.maxImagePixels)
	if errors.Is(err, composer.ErrTooManyPixels) {
		return "", &core.ValidationError{Field: field, Reason: fmt.Sprintf("image has more than %d pixels", s.maxImagePixels)}
	}
	if err != nil {
		return "", &core.ValidationError{Field: field, Reason: "not a supported image (png or jpeg)"}
	}
	return format, nil
}

func photoBytes(p *photoSource) []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// compose loads the background and renders on a bounded number of slots.
func (s *IssuanceService) compose(ctx context.Context, in composer.Input, backgroundRef, kind string) ([]byte, error) {
	background, err := s.blobs.Get(ctx, backgroundRef)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.CompositionError{Field: "background", Reason: fmt.Sprintf("background '%s' does not exist", backgroundRef)}
		}
		return nil, &core.UnavailableError{Op: "loading background", Err: err}
	}
	in.Background = background

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.composeSlots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.composeSlots.Release(1)

	start := time.Now()
	rendered, err := s.composer.Compose(in)
	s.metrics.ObserveCompose(kind, time.Since(start))
	if err != nil {
		var compErr *core.CompositionError
		if !errors.As(err, &compErr) {
			err = &core.CompositionError{Reason: "render failed", Err: err}
		}
		return nil, err
	}
	return rendered, nil
}

func (s *IssuanceService) blobPath(prefix string, key core.ArtifactKey, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s.%s",
		prefix,
		url.PathEscape(key.StudentID),
		url.PathEscape(key.CourseID),
		key.Kind,
		s.newID(),
		ext,
	)
}

// commit writes the new blobs, flips the pointer with compare-and-swap and
// removes what the new pointer superseded. Once the blobs are written the
// remaining steps ignore cancellation so no orphan is left behind.
func (s *IssuanceService) commit(
	ctx context.Context,
	logger *zerolog.Logger,
	key core.ArtifactKey,
	rendered []byte,
	photo *photoSource,
	previous *core.Artifact,
	profile *core.Profile,
	now time.Time,
) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bg := context.WithoutCancel(ctx)

	var written []string
	discard := func() {
		for _, ref := range written {
			s.removeBlob(bg, logger, ref, "discarding uncommitted blob")
		}
	}

	renderRef, err := s.blobs.Put(ctx, s.blobPath("artifacts", key, "png"), rendered, composer.ContentType)
	if err != nil {
		return nil, &core.UnavailableError{Op: "storing render", Err: err}
	}
	written = append(written, renderRef)

	var photoRef string
	if photo != nil {
		photoRef = photo.ref
		if photo.fresh {
			ref, err := s.blobs.Put(ctx, s.blobPath("photos", key, photo.ext), photo.data, "image/"+photo.ext)
			if err != nil {
				discard()
				return nil, &core.UnavailableError{Op: "storing photo", Err: err}
			}
			written = append(written, ref)
			photoRef = ref
		}
	}

	// the pointer flip must not be abandoned half way
	if err := ctx.Err(); err != nil {
		discard()
		return nil, err
	}

	current := previous
	for attempt := 0; attempt <= s.commitRetries; attempt++ {
		var expected int64
		if current != nil {
			expected = current.Version
		}
		next := &core.Artifact{
			ArtifactKey:    key,
			RenderedRef:    renderRef,
			SourcePhotoRef: photoRef,
			GeneratedAt:    now,
			Status:         core.StatusComplete,
		}

		err := s.artifacts.CompareAndSwap(bg, expected, next)
		if err == nil {
			s.cleanupSuperseded(bg, logger, current, next, profile)
			return next, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			discard()
			return nil, &core.UnavailableError{Op: "committing artifact", Err: err}
		}

		s.metrics.CommitConflict()
		logger.Debug().Int("attempt", attempt+1).Msg("artifact pointer changed concurrently, retrying")
		current, err = s.currentArtifact(bg, key)
		if err != nil {
			discard()
			return nil, err
		}

		// a reused photo is only safe while the pointer or the profile still holds it
		if photoRef != "" && photoRef == photo.ref && !photoHeld(photoRef, current, profile) {
			ref, err := s.blobs.Put(bg, s.blobPath("photos", key, photo.ext), photo.data, "image/"+photo.ext)
			if err != nil {
				discard()
				return nil, &core.UnavailableError{Op: "storing photo", Err: err}
			}
			written = append(written, ref)
			photoRef = ref
		}
	}

	discard()
	return nil, &core.ConflictError{Key: key}
}

// photoHeld reports whether ref is referenced by the current pointer or the profile.
func photoHeld(ref string, current *core.Artifact, profile *core.Profile) bool {
	if ref == profile.PhotoRef {
		return true
	}
	return current != nil && current.SourcePhotoRef == ref
}

// cleanupSuperseded deletes blobs only the replaced pointer referenced.
func (s *IssuanceService) cleanupSuperseded(
	ctx context.Context,
	logger *zerolog.Logger,
	old *core.Artifact,
	next *core.Artifact,
	profile *core.Profile,
) {
	if old == nil {
		return
	}
	if old.RenderedRef != "" && old.RenderedRef != next.RenderedRef {
		s.removeBlob(ctx, logger, old.RenderedRef, "superseded render")
	}
	// profile portraits belong to the platform
	if old.SourcePhotoRef != "" &&
		old.SourcePhotoRef != next.SourcePhotoRef &&
		old.SourcePhotoRef != profile.PhotoRef {
		s.removeBlob(ctx, logger, old.SourcePhotoRef, "superseded photo")
	}
}

// removeBlob deletes a blob and queues it for a retry if that fails.
// A blob that is already gone counts as deleted.
func (s *IssuanceService) removeBlob(ctx context.Context, logger *zerolog.Logger, ref, reason string) {
	err := s.blobs.Delete(ctx, ref)
	if errors.Is(err, core.ErrNotFound) {
		err = nil
	}
	s.metrics.BlobDeletion(err == nil)
	if err == nil {
		return
	}
	logger.Warn().Err(err).Str("ref", ref).Msg("blob deletion failed, queueing retry")
	if s.deletions == nil {
		return
	}
	if err := s.deletions.Enqueue(ctx, ref, reason); err != nil {
		logger.Error().Err(err).Str("ref", ref).Msg("failed to queue blob deletion, blob is orphaned")
	}
}

// GetEligibility reports when the student may obtain artifacts of a course.
func (s *IssuanceService) GetEligibility(ctx context.Context, credential, studentID, courseID string) (*EligibilityView, error) {
	if _, err := s.guard.Authorize(ctx, credential, core.CapReadArtifact, studentID); err != nil {
		return nil, err
	}
	_, _, gate, err := s.evaluate(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	return &EligibilityView{
		StudentID:     studentID,
		CourseID:      courseID,
		Eligible:      gate.Eligible,
		AvailableAt:   gate.AvailableAt,
		DaysRemaining: gate.DaysRemaining,
	}, nil
}

// maxBackgroundSize bounds uploaded background images.
const maxBackgroundSize = 16 << 20

// UploadBackground stores a background image for a course template and
// returns its reference. Admin only. The template is not changed.
func (s *IssuanceService) UploadBackground(
	ctx context.Context,
	credential string,
	courseID string,
	kind core.Kind,
	data []byte,
) (ref string, err error) {
	logger := loggerWith(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("course", courseID).Str("kind", string(kind))
	})
	entry := s.newAuditEntry(ctx, ActionBackgroundUpload)
	entry.CourseID = courseID
	entry.Kind = kind
	defer func() {
		finishAudit(&entry, err)
		if ref != "" {
			entry.Metadata = map[string]any{"background_ref": ref}
		}
		s.audit(ctx, entry)
		logOutcome(logger, err, "template.background")
	}()

	caller, err := s.guard.Authorize(ctx, credential, core.CapManageTemplate, "")
	entry.Caller = caller
	if err != nil {
		return "", err
	}
	if _, err := core.ParseKind(string(kind)); err != nil {
		return "", err
	}
	if courseID == "" {
		return "", &core.ValidationError{Field: "course_id", Reason: "must not be empty"}
	}
	if len(data) > maxBackgroundSize {
		return "", httpError(http.StatusRequestEntityTooLarge,
			fmt.Errorf("background exceeds %d bytes", maxBackgroundSize))
	}
	format, err := s.inspectUpload("background", data)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("backgrounds/%s/%s/%s.%s", url.PathEscape(courseID), kind, s.newID(), format)
	ref, err = s.blobs.Put(ctx, path, data, "image/"+format)
	if err != nil {
		return "", &core.UnavailableError{Op: "storing background", Err: err}
	}
	return ref, nil
}

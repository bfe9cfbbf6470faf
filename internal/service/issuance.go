package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/darmiel/kartei/internal/composer"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/guard"
	"github.com/darmiel/kartei/internal/metrics"
	"github.com/darmiel/kartei/internal/ratelimit"
	"github.com/darmiel/kartei/internal/reqctx"
)

// Composer renders an artifact. Implemented by *composer.Composer.
type Composer interface {
	Compose(in composer.Input) ([]byte, error)
}

// Templates is the template registry as seen by the service.
type Templates interface {
	GetTemplate(ctx context.Context, courseID string, kind core.Kind) (*core.Template, error)
	PutTemplate(ctx context.Context, courseID string, kind core.Kind, tpl core.Template) (*core.Template, error)
}

// Dependencies are the collaborators of the IssuanceService.
// Deletions, Auditor, Limiter and Metrics are optional.
type Dependencies struct {
	Guard       *guard.Guard
	Templates   Templates
	Enrollments core.EnrollmentStore
	Profiles    core.ProfileStore
	Artifacts   core.ArtifactStore
	Blobs       core.BlobStore
	Deletions   core.DeletionQueue
	Composer    Composer
	Auditor     core.Auditor
	Limiter     ratelimit.Limiter
	Metrics     *metrics.Metrics
}

// IssuanceService authorizes, gates, renders and persists artifacts.
// It owns every side effect of issuance.
type IssuanceService struct {
	guard       *guard.Guard
	templates   Templates
	enrollments core.EnrollmentStore
	profiles    core.ProfileStore
	artifacts   core.ArtifactStore
	blobs       core.BlobStore
	deletions   core.DeletionQueue
	composer    Composer
	auditor     core.Auditor
	limiter     ratelimit.Limiter
	metrics     *metrics.Metrics

	composeSlots   *semaphore.Weighted
	commitRetries  int
	maxImagePixels int
	now            func() time.Time
	newID          func() string
}

type Option func(*IssuanceService)

// WithComposeWorkers bounds the number of concurrent renders.
func WithComposeWorkers(n int) Option {
	return func(s *IssuanceService) {
		if n > 0 {
			s.composeSlots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithCommitRetries sets how often a lost pointer update is retried.
func WithCommitRetries(n int) Option {
	return func(s *IssuanceService) {
		if n >= 0 {
			s.commitRetries = n
		}
	}
}

// WithMaxImagePixels bounds width*height of uploaded photos and backgrounds.
func WithMaxImagePixels(n int) Option {
	return func(s *IssuanceService) {
		if n > 0 {
			s.maxImagePixels = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *IssuanceService) {
		s.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *IssuanceService) {
		s.newID = fn
	}
}

func NewIssuanceService(deps Dependencies, opts ...Option) (*IssuanceService, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("issuance service requires a guard")
	case deps.Templates == nil:
		return nil, errors.New("issuance service requires a template registry")
	case deps.Enrollments == nil, deps.Profiles == nil:
		return nil, errors.New("issuance service requires enrollment and profile stores")
	case deps.Artifacts == nil:
		return nil, errors.New("issuance service requires an artifact store")
	case deps.Blobs == nil:
		return nil, errors.New("issuance service requires a blob store")
	case deps.Composer == nil:
		return nil, errors.New("issuance service requires a composer")
	}

	s := &IssuanceService{
		guard:          deps.Guard,
		templates:      deps.Templates,
		enrollments:    deps.Enrollments,
		profiles:       deps.Profiles,
		artifacts:      deps.Artifacts,
		blobs:          deps.Blobs,
		deletions:      deps.Deletions,
		composer:       deps.Composer,
		auditor:        deps.Auditor,
		limiter:        deps.Limiter,
		metrics:        deps.Metrics,
		composeSlots:   semaphore.NewWeighted(4),
		commitRetries:  3,
		maxImagePixels: composer.DefaultMaxPixels,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *IssuanceService) audit(ctx context.Context, entry core.AuditEntry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", entry.Action).Msg("failed to write audit log entry")
	}
}

func (s *IssuanceService) newAuditEntry(ctx context.Context, action string) core.AuditEntry {
	return core.AuditEntry{
		ID:     reqctx.CorrelationID(ctx),
		Time:   s.now(),
		Action: action,
	}
}

// finishAudit fills the decision fields from the operation result.
func finishAudit(entry *core.AuditEntry, err error) {
	entry.Outcome = outcomeFor(err)
	if err == nil {
		entry.Granted = true
		return
	}
	entry.Error = err.Error()

	var authErr *core.AuthenticationError
	var permErr *core.PermissionError
	entry.Granted = !errors.As(err, &authErr) && !errors.As(err, &permErr)
}

func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	return Code(err)
}

// logOutcome logs at a level matching the kind of failure.
func logOutcome(logger *zerolog.Logger, err error, msg string) {
	var (
		compErr *core.CompositionError
		notYet  *core.NotYetAvailableError
	)
	switch {
	case err == nil:
		logger.Info().Msg(msg)
	case errors.As(err, &compErr):
		// template and data disagree, this needs an operator
		logger.Error().Err(err).Msg(msg)
	case errors.As(err, &notYet):
		logger.Info().Err(err).Msg(msg)
	case StatusFor(err) >= 500:
		logger.Error().Err(err).Msg(msg)
	default:
		logger.Warn().Err(err).Msg(msg)
	}
}

func loggerWith(ctx context.Context, fields func(c zerolog.Context) zerolog.Context) *zerolog.Logger {
	l := log.Ctx(ctx).With()
	l = fields(l)
	logger := l.Logger()
	return &logger
}

// RequestTemplateUpdate replaces the template of a course. Admin only.
func (s *IssuanceService) RequestTemplateUpdate(
	ctx context.Context,
	credential string,
	courseID string,
	kind core.Kind,
	tpl core.Template,
) (stored *core.Template, err error) {
	logger := loggerWith(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("course", courseID).Str("kind", string(kind))
	})
	entry := s.newAuditEntry(ctx, ActionTemplateUpdate)
	entry.CourseID = courseID
	entry.Kind = kind
	defer func() {
		finishAudit(&entry, err)
		s.audit(ctx, entry)
		s.metrics.TemplateUpdate(string(kind), outcomeFor(err))
		logOutcome(logger, err, "template.update")
	}()

	caller, err := s.guard.Authorize(ctx, credential, core.CapManageTemplate, "")
	entry.Caller = caller
	if caller != nil {
		logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("sub", caller.ID)
		})
	}
	if err != nil {
		return nil, err
	}
	if _, err := core.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	tpl.UpdatedBy = caller.ID
	return s.templates.PutTemplate(ctx, courseID, kind, tpl)
}

// GetTemplate returns the current template of a course. Admin only.
func (s *IssuanceService) GetTemplate(ctx context.Context, credential, courseID string, kind core.Kind) (*core.Template, error) {
	if _, err := s.guard.Authorize(ctx, credential, core.CapManageTemplate, ""); err != nil {
		return nil, err
	}
	if _, err := core.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return s.templates.GetTemplate(ctx, courseID, kind)
}

// GetArtifact returns the current artifact pointer of a student.
func (s *IssuanceService) GetArtifact(ctx context.Context, credential string, key core.ArtifactKey) (*core.Artifact, error) {
	if _, err := s.guard.Authorize(ctx, credential, core.CapReadArtifact, key.StudentID); err != nil {
		return nil, err
	}
	if _, err := core.ParseKind(string(key.Kind)); err != nil {
		return nil, err
	}
	a, err := s.artifacts.GetArtifact(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("artifact '%s': %w", key, core.ErrNotFound)
		}
		return nil, &core.UnavailableError{Op: "loading artifact", Err: err}
	}
	return a, nil
}

// GetArtifactImage returns the rendered bytes of the current artifact.
func (s *IssuanceService) GetArtifactImage(ctx context.Context, credential string, key core.ArtifactKey) (*ArtifactImage, error) {
	a, err := s.GetArtifact(ctx, credential, key)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, a.RenderedRef)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("rendered image of '%s': %w", key, core.ErrNotFound)
		}
		return nil, &core.UnavailableError{Op: "loading rendered image", Err: err}
	}
	return &ArtifactImage{
		Artifact:    a,
		Data:        data,
		ContentType: composer.ContentType,
	}, nil
}

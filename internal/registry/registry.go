// Package registry stores and retrieves per-course artifact templates.
// It is a pure data boundary: capability checks are done by the caller.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/metrics"
)

const DefaultCacheSize = 256

type cacheKey struct {
	courseID string
	kind     core.Kind
}

func (k cacheKey) String() string {
	return k.courseID + "/" + string(k.kind)
}

type Registry struct {
	store core.TemplateStore
	cache *lru.Cache[cacheKey, core.Template]
	group singleflight.Group
	// generation is bumped on every write; loads started before a write
	// must not populate the cache
	generation atomic.Uint64
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(store core.TemplateStore, cacheSize int, opts ...Option) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, core.Template](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating template cache: %w", err)
	}
	r := &Registry{
		store: store,
		cache: cache,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GetTemplate returns the template for (courseID, kind) or a TemplateMissingError.
func (r *Registry) GetTemplate(ctx context.Context, courseID string, kind core.Kind) (*core.Template, error) {
	key := cacheKey{courseID: courseID, kind: kind}
	if tpl, ok := r.cache.Get(key); ok {
		r.metrics.TemplateCacheHit()
		cpy := tpl.Clone()
		return &cpy, nil
	}
	r.metrics.TemplateCacheMiss()

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		gen := r.generation.Load()
		tpl, err := r.store.GetTemplate(ctx, courseID, kind)
		if err != nil {
			return nil, err
		}
		if r.generation.Load() == gen {
			r.cache.Add(key, tpl.Clone())
		}
		return tpl, nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.TemplateMissingError{CourseID: courseID, Kind: kind}
		}
		return nil, &core.UnavailableError{Op: "loading template", Err: err}
	}
	cpy := v.(*core.Template).Clone()
	return &cpy, nil
}

// PutTemplate validates and fully replaces the stored template.
func (r *Registry) PutTemplate(ctx context.Context, courseID string, kind core.Kind, tpl core.Template) (*core.Template, error) {
	tpl = tpl.Clone()
	tpl.CourseID = courseID
	tpl.Kind = kind
	if tpl.Fields == nil {
		tpl.Fields = make(map[string]core.FieldSpec)
	}
	if kind == core.KindCertificate {
		tpl.PhotoSpec = nil
	}
	if err := Validate(tpl); err != nil {
		return nil, err
	}
	tpl.UpdatedAt = r.now().UTC()

	key := cacheKey{courseID: courseID, kind: kind}
	r.generation.Add(1)
	r.cache.Remove(key)
	if err := r.store.PutTemplate(ctx, tpl); err != nil {
		return nil, &core.UnavailableError{Op: "storing template", Err: err}
	}
	r.generation.Add(1)
	r.cache.Remove(key)
	r.group.Forget(key.String())

	return &tpl, nil
}

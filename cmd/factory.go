package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/darmiel/kartei/internal/audit"
	"github.com/darmiel/kartei/internal/auth"
	"github.com/darmiel/kartei/internal/blob"
	"github.com/darmiel/kartei/internal/cliconfig"
	"github.com/darmiel/kartei/internal/composer"
	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/guard"
	"github.com/darmiel/kartei/internal/metrics"
	"github.com/darmiel/kartei/internal/ratelimit"
	"github.com/darmiel/kartei/internal/registry"
	"github.com/darmiel/kartei/internal/service"
	"github.com/darmiel/kartei/internal/store"
	"github.com/darmiel/kartei/internal/store/sqlstore"
	"github.com/darmiel/kartei/internal/tasks"
	"github.com/darmiel/kartei/pkg/client"
)

type Factory struct {
	// RemoteAddr is the address of the Kartei server to connect to.
	RemoteAddr string
}

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns an authenticated HTTP client for remote operations.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(KarteiAddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set KARTEI_ADDR)")
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		if cred, err := cfg.GetCredential(server); err == nil { // token prio 1: saved credential
			token = cred.Token
		} else if !errors.Is(err, cliconfig.ErrCredentialNotFound) {
			log.Warn().Err(err).Msg("ignoring stored credentials")
		}
	}

	if envToken := os.Getenv("KARTEI_TOKEN"); envToken != "" { // token prio 2: env var
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token)), nil
}

// LoadServerConfig loads the server configuration selected with --config.
func (f *Factory) LoadServerConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file not specified (use --config or set KARTEI_CONFIG)")
	}
	return config.Load(cfgFile)
}

// Runtime holds every component of a running issuance engine.
type Runtime struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Guard    *guard.Guard
	Issuance *service.IssuanceService
	Auditor  core.Auditor
	Tasks    *tasks.Manager
	Records  store.RecordWriter

	closers []func() error
}

// Close releases stores and flushes the auditor.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type persistence struct {
	templates   core.TemplateStore
	artifacts   core.ArtifactStore
	enrollments core.EnrollmentStore
	profiles    core.ProfileStore
	deletions   core.DeletionQueue
	records     store.RecordWriter
	close       func() error
}

func openPersistence(cfg config.DatabaseConfig) (*persistence, error) {
	if cfg.Driver == "memory" {
		records := store.NewInMemoryRecordStore()
		return &persistence{
			templates:   store.NewInMemoryTemplateStore(),
			artifacts:   store.NewInMemoryArtifactStore(),
			enrollments: records,
			profiles:    records,
			deletions:   store.NewInMemoryDeletionQueue(),
			records:     records,
			close:       func() error { return nil },
		}, nil
	}
	db, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &persistence{
		templates:   db,
		artifacts:   db,
		enrollments: db,
		profiles:    db,
		deletions:   db,
		records:     db,
		close:       db.Close,
	}, nil
}

// BuildRuntime wires the issuance engine from the server configuration.
func (f *Factory) BuildRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		rt.Metrics = metrics.New()
	}

	log.Info().Msg("Initializing auth providers...")
	providers, err := auth.BuildRegistry(ctx, cfg.Auth.Issuers)
	if err != nil {
		return fail(fmt.Errorf("building auth registry: %w", err))
	}
	var guardOpts []guard.Option
	if !cfg.Auth.OnBehalfAllowed() {
		guardOpts = append(guardOpts, guard.WithoutOnBehalf())
	}
	rt.Guard = guard.New(providers, guardOpts...)

	log.Info().Str("driver", cfg.Database.Driver).Msg("Opening database...")
	db, err := openPersistence(cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}
	rt.closers = append(rt.closers, db.close)
	rt.Records = db.records

	log.Info().Str("type", cfg.Blob.Type).Msg("Initializing blob store...")
	blobs, err := blob.Build(ctx, cfg.Blob)
	if err != nil {
		return fail(fmt.Errorf("building blob store: %w", err))
	}

	rt.Auditor, err = audit.Build(cfg.Audit)
	if err != nil {
		return fail(fmt.Errorf("building auditor: %w", err))
	}
	rt.closers = append(rt.closers, rt.Auditor.Close)

	templates, err := registry.New(db.templates, cfg.Templates.CacheSize, registry.WithMetrics(rt.Metrics))
	if err != nil {
		return fail(fmt.Errorf("building template registry: %w", err))
	}

	rt.Issuance, err = service.NewIssuanceService(service.Dependencies{
		Guard:       rt.Guard,
		Templates:   templates,
		Enrollments: db.enrollments,
		Profiles:    db.profiles,
		Artifacts:   db.artifacts,
		Blobs:       blobs,
		Deletions:   db.deletions,
		Composer:    composer.New(composer.WithMaxPixels(cfg.Issuance.MaxImagePixels)),
		Auditor:     rt.Auditor,
		Limiter:     ratelimit.New(cfg.Issuance.RateLimit.PerSecond, cfg.Issuance.RateLimit.Burst),
		Metrics:     rt.Metrics,
	},
		service.WithComposeWorkers(cfg.Issuance.ComposeWorkers),
		service.WithCommitRetries(cfg.Issuance.CommitRetries),
		service.WithMaxImagePixels(cfg.Issuance.MaxImagePixels),
	)
	if err != nil {
		return fail(fmt.Errorf("building issuance service: %w", err))
	}

	rt.Tasks = tasks.NewManager(tasks.WithObserver(rt.Metrics.TaskRun))
	gc := service.BlobGC(db.deletions, blobs, rt.Metrics, cfg.Cleanup.BatchSize)
	if err := rt.Tasks.Register(service.BlobGCTaskName, cfg.Cleanup.Schedule, gc); err != nil {
		return fail(fmt.Errorf("registering %s task: %w", service.BlobGCTaskName, err))
	}
	return rt, nil
}

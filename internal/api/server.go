package api

import (
	"net/http"

	"github.com/darmiel/kartei/internal/api/middleware"
	"github.com/darmiel/kartei/internal/audit"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/guard"
	"github.com/darmiel/kartei/internal/metrics"
	"github.com/darmiel/kartei/internal/service"
	"github.com/darmiel/kartei/internal/tasks"
)

// DefaultMaxUploadSize bounds photo and background uploads.
const DefaultMaxUploadSize = 16 << 20

type Server struct {
	issuance    *service.IssuanceService
	guard       *guard.Guard
	taskManager *tasks.Manager
	auditor     core.Auditor
	metrics     *metrics.Metrics

	maxUploadSize int64
}

func NewServer(
	issuance *service.IssuanceService,
	g *guard.Guard,
	taskManager *tasks.Manager,
	auditor core.Auditor,
	m *metrics.Metrics,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	if taskManager == nil {
		taskManager = tasks.NewManager()
	}
	return &Server{
		issuance:      issuance,
		guard:         g,
		taskManager:   taskManager,
		auditor:       auditor,
		metrics:       m,
		maxUploadSize: DefaultMaxUploadSize,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	if s.metrics != nil {
		mux.Handle("GET "+MetricsRoute, s.metrics.Handler())
	}

	mux.HandleFunc("GET "+WhoAmIRoute, s.handleWhoAmI)

	// issuance routes, authorization is decided by the service
	mux.HandleFunc("PUT "+TemplateRoute, s.handlePutTemplate)
	mux.HandleFunc("GET "+TemplateRoute, s.handleGetTemplate)
	mux.HandleFunc("PUT "+BackgroundRoute, s.handleUploadBackground)
	mux.HandleFunc("POST "+ArtifactRoute, s.handleRequestArtifact)
	mux.HandleFunc("GET "+ArtifactRoute, s.handleGetArtifact)
	mux.HandleFunc("GET "+ArtifactImageRoute, s.handleGetArtifactImage)
	mux.HandleFunc("GET "+EligibilityRoute, s.handleEligibility)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
	adminMux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	adminMux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
	adminMux.HandleFunc("GET "+LogsForTaskRoute, s.handleLogsForTask)
	admin := middleware.AdminAuth(s.guard)(adminMux)
	mux.Handle(AuditParent, admin)
	mux.Handle(TaskParent, admin)

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}

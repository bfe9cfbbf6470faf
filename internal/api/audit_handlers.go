package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/audit"
	"github.com/darmiel/kartei/internal/core"
)

const defaultAuditLimit = 50

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	reader, ok := s.auditor.(core.AuditReader)
	if !ok {
		presenter.Err(w, r, httpStatus(http.StatusNotImplemented,
			errors.New("the configured auditor cannot be queried")), "reading audit log failed")
		return
	}

	q := r.URL.Query()
	limit := defaultAuditLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	filter := audit.Filter{
		Action:    q.Get("action"),
		CallerID:  q.Get("caller_id"),
		StudentID: q.Get("student_id"),
		CourseID:  q.Get("course_id"),
		Kind:      core.Kind(q.Get("kind")),
	}
	if grantedStr := q.Get("granted"); grantedStr != "" {
		granted, err := strconv.ParseBool(grantedStr)
		if err != nil {
			presenter.Error(w, r, "invalid granted parameter", http.StatusBadRequest)
			return
		}
		filter.Granted = &granted
	}
	correlationID := q.Get("correlation_id")

	var (
		entries []core.AuditEntry
		err     error
	)
	if filter != (audit.Filter{}) || correlationID != "" {
		logger.Debug().Msg("applying audit log filters")
		entries, err = reader.Find(func(entry core.AuditEntry) bool {
			if correlationID != "" && entry.ID != correlationID {
				return false
			}
			return filter.Match(entry)
		}, limit)
	} else {
		entries, err = reader.GetRecent(limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}

	presenter.JSON(w, r, entries, http.StatusOK)
}

package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/core"
)

// TemplatePayload is the body of a template update. Course and kind come from the path.
type TemplatePayload struct {
	BackgroundRef string                    `json:"background_ref" yaml:"background_ref"`
	Fields        map[string]core.FieldSpec `json:"fields" yaml:"fields"`
	PhotoSpec     *core.PhotoSpec           `json:"photo_spec,omitempty" yaml:"photo_spec,omitempty"`
}

type BackgroundResponse struct {
	BackgroundRef string `json:"background_ref"`
}

// handlePutTemplate fully replaces the template of a course.
func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	var payload TemplatePayload
	if err := DecodePayload(r, &payload, false); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to decode template payload")
		presenter.Err(w, r, httpStatus(http.StatusBadRequest, err), "invalid request payload")
		return
	}

	stored, err := s.issuance.RequestTemplateUpdate(r.Context(), credential(r), r.PathValue("courseId"), pathKind(r), core.Template{
		BackgroundRef: payload.BackgroundRef,
		Fields:        payload.Fields,
		PhotoSpec:     payload.PhotoSpec,
	})
	if err != nil {
		presenter.Err(w, r, err, "template update failed")
		return
	}
	presenter.JSON(w, r, stored, http.StatusOK)
}

// handleGetTemplate returns the current template of a course.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.issuance.GetTemplate(r.Context(), credential(r), r.PathValue("courseId"), pathKind(r))
	if err != nil {
		presenter.Err(w, r, err, "reading template failed")
		return
	}
	presenter.JSON(w, r, tpl, http.StatusOK)
}

// handleUploadBackground stores the raw image body as a template background.
func (s *Server) handleUploadBackground(w http.ResponseWriter, r *http.Request) {
	switch mediaType(r) {
	case "image/png", "image/jpeg", "application/octet-stream", "":
	default:
		presenter.Err(w, r, httpStatus(http.StatusUnsupportedMediaType, errUnsupportedContentType), "invalid background")
		return
	}
	data, err := s.readUpload(w, r)
	if err != nil {
		presenter.Err(w, r, err, "invalid background")
		return
	}
	if len(data) == 0 {
		presenter.Err(w, r, httpStatus(http.StatusBadRequest, errors.New("empty body")), "invalid background")
		return
	}

	ref, err := s.issuance.UploadBackground(r.Context(), credential(r), r.PathValue("courseId"), pathKind(r), data)
	if err != nil {
		presenter.Err(w, r, err, "background upload failed")
		return
	}
	presenter.JSON(w, r, BackgroundResponse{BackgroundRef: ref}, http.StatusCreated)
}

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/service"
)

// ArtifactPayload is the JSON body of an artifact request.
// Photo is base64 encoded; multipart requests send it as the "photo" file.
type ArtifactPayload struct {
	Photo []byte `json:"photo,omitempty"`
	// CompletionDate (YYYY-MM-DD) overrides the date on certificates.
	CompletionDate string `json:"completion_date,omitempty"`
}

const (
	photoFormField          = "photo"
	completionDateFormField = "completion_date"
)

// handleRequestArtifact generates the current card or certificate of a student.
func (s *Server) handleRequestArtifact(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	studentID, err := s.targetStudent(r)
	if err != nil {
		presenter.Err(w, r, err, "artifact request failed")
		return
	}

	payload, err := s.decodeArtifactPayload(w, r)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to decode artifact payload")
		presenter.Err(w, r, err, "invalid request payload")
		return
	}

	req := service.ArtifactRequest{
		Credential: credential(r),
		StudentID:  studentID,
		CourseID:   r.PathValue("courseId"),
		Kind:       pathKind(r),
		Photo:      payload.Photo,
	}
	if payload.CompletionDate != "" {
		date, err := time.Parse(service.DateLayout, payload.CompletionDate)
		if err != nil {
			presenter.Err(w, r, &core.ValidationError{
				Field:  completionDateFormField,
				Reason: fmt.Sprintf("expected %s", service.DateLayout),
			}, "invalid request payload")
			return
		}
		req.CompletionDate = &date
	}

	artifact, err := s.issuance.RequestArtifact(r.Context(), req)
	if err != nil {
		presenter.Err(w, r, err, "artifact request failed")
		return
	}
	presenter.JSON(w, r, artifact, http.StatusCreated)
}

func (s *Server) decodeArtifactPayload(w http.ResponseWriter, r *http.Request) (ArtifactPayload, error) {
	var payload ArtifactPayload
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if mediaType(r) != "multipart/form-data" {
		if err := DecodePayload(r, &payload, true /* allow empty */); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return payload, httpStatus(http.StatusRequestEntityTooLarge, err)
			}
			if errors.Is(err, errUnsupportedContentType) {
				return payload, httpStatus(http.StatusUnsupportedMediaType, err)
			}
			return payload, httpStatus(http.StatusBadRequest, err)
		}
		return payload, nil
	}

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payload, httpStatus(http.StatusRequestEntityTooLarge, err)
		}
		return payload, httpStatus(http.StatusBadRequest, err)
	}
	payload.CompletionDate = r.FormValue(completionDateFormField)

	file, _, err := r.FormFile(photoFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return payload, nil
	}
	if err != nil {
		return payload, httpStatus(http.StatusBadRequest, err)
	}
	defer func() {
		_ = file.Close()
	}()
	if payload.Photo, err = io.ReadAll(file); err != nil {
		return payload, httpStatus(http.StatusBadRequest, err)
	}
	return payload, nil
}

func (s *Server) artifactKey(r *http.Request) (core.ArtifactKey, error) {
	studentID, err := s.targetStudent(r)
	if err != nil {
		return core.ArtifactKey{}, err
	}
	return core.ArtifactKey{
		StudentID: studentID,
		CourseID:  r.PathValue("courseId"),
		Kind:      pathKind(r),
	}, nil
}

// handleGetArtifact returns the current artifact pointer.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	key, err := s.artifactKey(r)
	if err != nil {
		presenter.Err(w, r, err, "reading artifact failed")
		return
	}
	artifact, err := s.issuance.GetArtifact(r.Context(), credential(r), key)
	if err != nil {
		presenter.Err(w, r, err, "reading artifact failed")
		return
	}
	presenter.JSON(w, r, artifact, http.StatusOK)
}

// handleGetArtifactImage streams the rendered image of the current artifact.
func (s *Server) handleGetArtifactImage(w http.ResponseWriter, r *http.Request) {
	key, err := s.artifactKey(r)
	if err != nil {
		presenter.Err(w, r, err, "reading artifact failed")
		return
	}
	img, err := s.issuance.GetArtifactImage(r.Context(), credential(r), key)
	if err != nil {
		presenter.Err(w, r, err, "reading artifact failed")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(img.Artifact.Version, 10)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to write artifact image")
	}
}

// handleEligibility reports when a student may request artifacts of a course.
func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	studentID, err := s.targetStudent(r)
	if err != nil {
		presenter.Err(w, r, err, "eligibility check failed")
		return
	}
	view, err := s.issuance.GetEligibility(r.Context(), credential(r), studentID, r.PathValue("courseId"))
	if err != nil {
		presenter.Err(w, r, err, "eligibility check failed")
		return
	}
	presenter.JSON(w, r, view, http.StatusOK)
}

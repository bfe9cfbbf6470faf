package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/darmiel/kartei/internal/api/middleware"
	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/buildinfo"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/service"
)

// handleHealth responds with a simple OK status to indicate the server is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleAbout responds with service information including version and commit hash.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.GetBuildInfo(), http.StatusOK)
}

// handleWhoAmI returns the caller resolved from the bearer token.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	caller, err := s.guard.Authenticate(r.Context(), credential(r))
	if err != nil {
		presenter.Err(w, r, err, "authentication failed")
		return
	}
	presenter.JSON(w, r, caller, http.StatusOK)
}

var errUnsupportedContentType = errors.New("unsupported content type")

func mediaType(r *http.Request) string {
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw
	}
	return mt
}

func DecodePayload(r *http.Request, dest any, allowEmpty bool) error {
	switch mediaType(r) {
	case "application/json", "":
		// strict encoding for JSON
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dest); err != nil {
			if !errors.Is(err, io.EOF) || !allowEmpty {
				return err
			}
		}
		// ensure there's no extra data
		if dec.More() {
			return errors.New("extra data in request body")
		}
		return nil
	default:
		return errUnsupportedContentType
	}
}

// credential returns the bearer token of the request.
func credential(r *http.Request) string {
	return middleware.BearerToken(r)
}

// targetStudent is the student_id query parameter or the caller itself.
func (s *Server) targetStudent(r *http.Request) (string, error) {
	if id := r.URL.Query().Get(StudentIDParam); id != "" {
		return id, nil
	}
	caller, err := s.guard.Authenticate(r.Context(), credential(r))
	if err != nil {
		return "", err
	}
	return caller.ID, nil
}

func pathKind(r *http.Request) core.Kind {
	return core.Kind(r.PathValue("kind"))
}

// readUpload reads a size limited request body.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, httpStatus(http.StatusRequestEntityTooLarge, err)
		}
		return nil, httpStatus(http.StatusBadRequest, err)
	}
	return data, nil
}

func httpStatus(code int, err error) error {
	return &service.HTTPError{StatusCode: code, Wrapped: err}
}

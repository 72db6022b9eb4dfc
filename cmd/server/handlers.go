//go:build !js && !wasm

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/himanishpuri/AudioInsight/internal/config"
	"github.com/himanishpuri/AudioInsight/pkg/insight"
	"github.com/himanishpuri/AudioInsight/pkg/logger"
	"github.com/himanishpuri/AudioInsight/pkg/metrics"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temp files.
const multipartMemory = 32 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service insight.Service
	config  *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewServer creates a new server instance. m may be nil when metrics are
// disabled.
func NewServer(service insight.Service, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		service: service,
		config:  cfg,
		log:     log,
		metrics: m,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondFailure writes a handled failure. The status is always 200.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, outcome, message string) {
	s.observe(r, outcome)
	s.respondJSON(w, http.StatusOK, ErrorResponse{Error: message})
}

func (s *Server) observe(r *http.Request, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRequest(r.Method, outcome)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().Format(time.RFC3339),
	})
}

// handleAnalyze handles /analyze: POST runs an analysis, OPTIONS answers a
// preflight.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.analyze(w, r)
	case http.MethodOptions:
		s.observe(r, "preflight")
		s.respondJSON(w, http.StatusOK, AckResponse{Message: "OK"})
	default:
		s.observe(r, "method_not_allowed")
		w.Header().Set("Allow", "POST, OPTIONS")
		s.respondJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: MsgMethodNotAllowed})
	}
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	log := insight.LoggerFrom(r.Context(), s.log)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warnf("Upload exceeds %d bytes", tooLarge.Limit)
			s.respondFailure(w, r, "too_large", fmt.Sprintf(
				"Audio file is too large. Maximum upload size is %d MB.", s.config.Server.MaxUploadMB))
			return
		}
		log.Warnf("Failed to parse form: %v", err)
		s.respondFailure(w, r, "bad_request", MsgInvalidUpload)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		log.Warnf("No file in upload: %v", err)
		s.respondFailure(w, r, "bad_request", MsgNoFile)
		return
	}
	defer file.Close()

	genre, daw, ok := s.labels(r.MultipartForm)
	if !ok {
		log.Warnf("Rejecting upload without genre/daw")
		s.respondFailure(w, r, "bad_request", MsgLabelsRequired)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Errorf("Failed to read upload %q: %v", header.Filename, err)
		s.respondFailure(w, r, insight.UnexpectedFailure.String(), insight.MsgServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveUpload(len(data))
	}

	log.Infof("Received %q (%s, %d bytes) genre=%q daw=%q",
		header.Filename, header.Header.Get("Content-Type"), len(data), genre, daw)

	res, err := s.service.Analyze(r.Context(), &insight.Request{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Genre:       genre,
		DAW:         daw,
	})
	if err != nil {
		var f *insight.Failure
		if !errors.As(err, &f) {
			f = &insight.Failure{Kind: insight.UnexpectedFailure, Err: err}
		}
		log.Warnf("Analysis of %q failed: %v", header.Filename, f)
		s.respondFailure(w, r, f.Kind.String(), f.Message())
		return
	}

	s.observe(r, "ok")
	s.respondJSON(w, http.StatusOK, res)
}

// labels reads the genre and daw fields. A field that is present is passed
// through verbatim, even when empty; an absent one takes the configured
// default unless labels are required.
func (s *Server) labels(form *multipart.Form) (genre, daw string, ok bool) {
	genre, hasGenre := formValue(form, "genre")
	daw, hasDAW := formValue(form, "daw")

	if s.config.Labels.Required && (!hasGenre || !hasDAW) {
		return "", "", false
	}
	if !hasGenre {
		genre = s.config.Labels.Default
	}
	if !hasDAW {
		daw = s.config.Labels.Default
	}
	return genre, daw, true
}

func formValue(form *multipart.Form, key string) (string, bool) {
	if form == nil {
		return "", false
	}
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

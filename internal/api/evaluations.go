package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/pelagos-labs/speakgrade/internal/archive"
	"github.com/pelagos-labs/speakgrade/internal/auth"
	"github.com/pelagos-labs/speakgrade/internal/database"
	"github.com/pelagos-labs/speakgrade/internal/evaluation"
	"github.com/pelagos-labs/speakgrade/internal/report"
	"github.com/pelagos-labs/speakgrade/internal/transcribe"
)

// allowedContentTypes lists media types accepted for upload, beyond the
// generic audio/ and video/ prefixes.
var allowedContentTypes = map[string]bool{
	"audio/mpeg":      true,
	"audio/mp3":       true,
	"audio/wav":       true,
	"audio/wave":      true,
	"audio/x-wav":     true,
	"audio/webm":      true,
	"audio/ogg":       true,
	"audio/flac":      true,
	"audio/m4a":       true,
	"audio/x-m4a":     true,
	"audio/mp4":       true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"video/quicktime": true,
}

// Evaluator runs the full evaluation flow for one validated upload.
// *evaluation.Orchestrator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, employeeID int64, treq transcribe.Request) (*evaluation.Result, error)
}

// ReportLister reads an evaluation's report history.
type ReportLister interface {
	ListReports(ctx context.Context, evaluationID uuid.UUID) ([]database.ReportRecord, error)
	GetReport(ctx context.Context, reportID uuid.UUID) (*database.ReportRecord, error)
}

// RecordingStore serves archived recordings. *archive* store types satisfy
// it; nil means the archive is disabled.
type RecordingStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(ctx context.Context, key string) (string, error)
}

// EvaluationsHandler serves the evaluation endpoints.
type EvaluationsHandler struct {
	evaluator  Evaluator
	reports    ReportLister
	recordings RecordingStore // optional
	maxBytes   int64
	log        zerolog.Logger
}

func NewEvaluationsHandler(evaluator Evaluator, reports ReportLister, recordings RecordingStore, maxBytes int64, log zerolog.Logger) *EvaluationsHandler {
	return &EvaluationsHandler{
		evaluator:  evaluator,
		reports:    reports,
		recordings: recordings,
		maxBytes:   maxBytes,
		log:        log.With().Str("handler", "evaluations").Logger(),
	}
}

// Routes registers the evaluation endpoints.
func (h *EvaluationsHandler) Routes(r chi.Router) {
	r.Post("/api/v1/evaluations/report", h.CreateReport)
	r.Get("/api/v1/evaluations/{id}/reports", h.ListReports)
	r.Get("/api/v1/evaluations/reports/{reportID}/recording", h.DownloadRecording)
}

// EvaluationResponse is the success body for report creation.
type EvaluationResponse struct {
	EvaluationID  uuid.UUID                `json:"evaluation_id"`
	ReportID      uuid.UUID                `json:"report_id"`
	Transcription string                   `json:"transcription"`
	Report        *report.EvaluationReport `json:"report"`
}

// CreateReport handles POST /api/v1/evaluations/report.
// Accepts a multipart upload with a "file" field plus optional
// language_code, diarize, and tag_audio_events fields. The file is
// validated before any network call is made.
func (h *EvaluationsHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	if principal == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	treq, err := h.parseUpload(r)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	hlog.FromRequest(r).Info().
		Int64("employee_id", principal.EmployeeID).
		Str("filename", treq.Filename).
		Int("size", len(treq.Audio)).
		Msg("starting evaluation")

	res, err := h.evaluator.Evaluate(r.Context(), principal.EmployeeID, *treq)
	if err != nil {
		h.writeEvaluateError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, EvaluationResponse{
		EvaluationID:  res.EvaluationID,
		ReportID:      res.ReportID,
		Transcription: res.Transcript,
		Report:        res.Report,
	})
}

// parseUpload validates the uploaded media and optional form fields.
func (h *EvaluationsHandler) parseUpload(r *http.Request) (*transcribe.Request, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("no file provided")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedContentTypes[contentType] &&
		!strings.HasPrefix(contentType, "audio/") &&
		!strings.HasPrefix(contentType, "video/") {
		return nil, fmt.Errorf("invalid file type %q: must be audio or video", contentType)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("file too large: maximum size %d bytes", h.maxBytes)
	}

	treq := transcribe.Request{
		Audio:       data,
		Filename:    header.Filename,
		ContentType: contentType,
		Language:    "eng",
		Diarize:     true,
		TagEvents:   true,
	}
	if v := r.FormValue("language_code"); v != "" {
		treq.Language = v
	}
	if v := r.FormValue("diarize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid diarize value %q", v)
		}
		treq.Diarize = b
	}
	if v := r.FormValue("tag_audio_events"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid tag_audio_events value %q", v)
		}
		treq.TagEvents = b
	}
	return &treq, nil
}

// writeEvaluateError maps the error taxonomy onto status codes: 422 for
// unusable input, 502 for upstream provider failures (distinguishable via
// error code), 500 for everything else with the detail kept in the logs.
func (h *EvaluationsHandler) writeEvaluateError(w http.ResponseWriter, r *http.Request, err error) {
	log := hlog.FromRequest(r)
	switch {
	case errors.Is(err, report.ErrEmptyTranscript):
		log.Warn().Err(err).Msg("empty transcript")
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, evaluation.ErrTranscription):
		log.Error().Err(err).Msg("transcription failed")
		WriteErrorCode(w, http.StatusBadGateway, "transcription failed", CodeTranscriptionFailed)
	case errors.Is(err, report.ErrGeneration):
		log.Error().Err(err).Msg("report generation failed")
		WriteErrorCode(w, http.StatusBadGateway, "failed to generate a valid evaluation report", CodeGenerationFailed)
	default:
		log.Error().Err(err).Msg("evaluation failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ListReports handles GET /api/v1/evaluations/{id}/reports, returning the
// report history newest-first.
func (h *EvaluationsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid evaluation id")
		return
	}

	records, err := h.reports.ListReports(r.Context(), id)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list reports failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []database.ReportRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"reports": records})
}

// DownloadRecording handles GET /api/v1/evaluations/reports/{reportID}/recording.
// S3-backed archives redirect to a presigned URL; local archives stream the
// file directly.
func (h *EvaluationsHandler) DownloadRecording(w http.ResponseWriter, r *http.Request) {
	if h.recordings == nil {
		WriteError(w, http.StatusNotFound, "recording archive is not enabled")
		return
	}

	reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	rec, err := h.reports.GetReport(r.Context(), reportID)
	if errors.Is(err, pgx.ErrNoRows) {
		WriteError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("report lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rec.RecordingKey == nil {
		WriteError(w, http.StatusNotFound, "no recording archived for this report")
		return
	}
	key := *rec.RecordingKey

	if url, err := h.recordings.URL(r.Context(), key); err == nil && url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	f, err := h.recordings.Open(r.Context(), key)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("archived recording missing")
		WriteError(w, http.StatusNotFound, "recording no longer available")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", archive.ContentTypeForExt(path.Ext(key)))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

package prescription

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/document"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ocr"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
)

type Handler struct {
	service ServiceInterface
}

func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// Analyze handles the authenticated intake upload. The document travels
// the full pipeline and commits on success.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}

	input := AnalyzeInput{
		Data:        data,
		ContentType: contentType,
		Persist:     true,
	}
	if hasRole(principal, RolePatient) {
		input.CallerPatientID = principal.PatientID
	}

	response, err := h.service.Analyze(r.Context(), input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// AnalyzeDemo handles the unauthenticated demo upload. Nothing is
// persisted and no patient identity is resolved.
func (h *Handler) AnalyzeDemo(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}

	response, err := h.service.Analyze(r.Context(), AnalyzeInput{
		Data:        data,
		ContentType: contentType,
		Persist:     false,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// History returns a page of committed visits, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	params := pagination.ParseParams(r)

	filter := HistoryFilter{
		PatientID: r.URL.Query().Get("patient_id"),
		Phone:     r.URL.Query().Get("phone"),
	}

	var err error
	filter.From, err = parseDateParam(r.URL.Query().Get("from"), false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid 'from' date, expected YYYY-MM-DD or RFC3339")
		return
	}
	filter.To, err = parseDateParam(r.URL.Query().Get("to"), true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid 'to' date, expected YYYY-MM-DD or RFC3339")
		return
	}

	response, err := h.service.History(r.Context(), principal, filter, params)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetVisit returns one committed visit by prescription serial.
func (h *Handler) GetVisit(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	serial := mux.Vars(r)["serial"]
	if serial == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Prescription serial is required")
		return
	}

	visit, err := h.service.GetVisit(r.Context(), principal, serial)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visit)
}

// readUpload pulls the "file" part out of a multipart form. It writes
// the error response itself and reports ok=false so callers just return.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(document.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Expected multipart form with a 'file' part")
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Missing 'file' part in upload")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, document.MaxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Failed to read uploaded file")
		return nil, "", false
	}

	return data, header.Header.Get("Content-Type"), true
}

// parseDateParam accepts YYYY-MM-DD or RFC3339. A date-only upper bound
// is pushed to the end of that day so "to=2026-01-15" includes the 15th.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}

	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrInvalidDocument):
		respondError(w, http.StatusBadRequest, "invalid_document", err.Error())
	case errors.Is(err, extract.ErrMissingRequiredField):
		respondError(w, http.StatusBadRequest, "extraction_failed", err.Error())
	case errors.Is(err, ErrDuplicatePrescription):
		respondError(w, http.StatusConflict, "duplicate_prescription", err.Error())
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrPatientNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, ocr.ErrUnavailable), errors.Is(err, screening.ErrModelUnavailable):
		respondError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func respondError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   errorType,
		"message": message,
	})
}

package prescription

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
)

type mockService struct {
	AnalyzeFunc  func(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error)
	HistoryFunc  func(ctx context.Context, principal *auth.Principal, filter HistoryFilter, params pagination.Params) (*HistoryResponse, error)
	GetVisitFunc func(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error)
}

func (m *mockService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, input)
	}
	return &AnalyzeResponse{PrescriptionSerial: "555001"}, nil
}

func (m *mockService) History(ctx context.Context, principal *auth.Principal, filter HistoryFilter, params pagination.Params) (*HistoryResponse, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, principal, filter, params)
	}
	return &HistoryResponse{Data: []Visit{}}, nil
}

func (m *mockService) GetVisit(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error) {
	if m.GetVisitFunc != nil {
		return m.GetVisitFunc(ctx, principal, serial)
	}
	return &Visit{PrescriptionSerial: serial}, nil
}

func multipartUpload(t *testing.T, field string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "prescription.png")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	writer.Close()

	return &body, writer.FormDataContentType()
}

func authedRequest(r *http.Request, principal *auth.Principal) *http.Request {
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), principal))
}

func TestHandlerAnalyze_Success(t *testing.T) {
	service := &mockService{
		AnalyzeFunc: func(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
			if !input.Persist {
				t.Error("Expected intake uploads to persist")
			}
			return &AnalyzeResponse{PrescriptionSerial: "555001", PatientID: "PID-1"}, nil
		},
	}
	handler := NewHandler(service)

	body, contentType := multipartUpload(t, "file", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/prescriptions/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"RECEPTIONIST"}})

	w := httptest.NewRecorder()
	handler.Analyze(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var response AnalyzeResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.PrescriptionSerial != "555001" {
		t.Errorf("Expected serial 555001, got %q", response.PrescriptionSerial)
	}
}

func TestHandlerAnalyze_Unauthenticated(t *testing.T) {
	handler := NewHandler(&mockService{})

	body, contentType := multipartUpload(t, "file", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/prescriptions/analyze", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	handler.Analyze(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandlerAnalyze_MissingFilePart(t *testing.T) {
	handler := NewHandler(&mockService{})

	body, contentType := multipartUpload(t, "document", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/prescriptions/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"RECEPTIONIST"}})

	w := httptest.NewRecorder()
	handler.Analyze(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing 'file' part, got %d", w.Code)
	}
}

func TestHandlerAnalyze_Duplicate(t *testing.T) {
	service := &mockService{
		AnalyzeFunc: func(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
			return nil, ErrDuplicatePrescription
		},
	}
	handler := NewHandler(service)

	body, contentType := multipartUpload(t, "file", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/prescriptions/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"RECEPTIONIST"}})

	w := httptest.NewRecorder()
	handler.Analyze(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate serial, got %d", w.Code)
	}

	var body2 map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body2); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body2["error"] != "duplicate_prescription" {
		t.Errorf("Expected duplicate_prescription error type, got %v", body2["error"])
	}
}

func TestHandlerAnalyze_PatientCallerPinned(t *testing.T) {
	var gotCaller string
	service := &mockService{
		AnalyzeFunc: func(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
			gotCaller = input.CallerPatientID
			return &AnalyzeResponse{}, nil
		},
	}
	handler := NewHandler(service)

	body, contentType := multipartUpload(t, "file", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/prescriptions/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req = authedRequest(req, &auth.Principal{UserID: "u1", PatientID: "PID-SELF", Roles: []string{"PATIENT"}})

	w := httptest.NewRecorder()
	handler.Analyze(w, req)

	if gotCaller != "PID-SELF" {
		t.Errorf("Expected caller patient id forwarded, got %q", gotCaller)
	}
}

func TestHandlerAnalyzeDemo_NoAuthRequired(t *testing.T) {
	service := &mockService{
		AnalyzeFunc: func(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
			if input.Persist {
				t.Error("Expected demo uploads not to persist")
			}
			return &AnalyzeResponse{PrescriptionSerial: "demo-1"}, nil
		},
	}
	handler := NewHandler(service)

	body, contentType := multipartUpload(t, "file", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/public/analyze", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	handler.AnalyzeDemo(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for demo analysis, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlerHistory_ForwardsFiltersAndPagination(t *testing.T) {
	var gotFilter HistoryFilter
	var gotParams pagination.Params
	service := &mockService{
		HistoryFunc: func(ctx context.Context, principal *auth.Principal, filter HistoryFilter, params pagination.Params) (*HistoryResponse, error) {
			gotFilter = filter
			gotParams = params
			return &HistoryResponse{Data: []Visit{}, Meta: params.CalculateMeta(0)}, nil
		},
	}
	handler := NewHandler(service)

	req := httptest.NewRequest("GET", "/prescriptions/history?page=2&limit=10&patient_id=PID-1&from=2026-01-01&to=2026-01-31", nil)
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"DOCTOR"}})

	w := httptest.NewRecorder()
	handler.History(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if gotParams.Page != 2 || gotParams.Limit != 10 {
		t.Errorf("Expected page 2 limit 10, got %d/%d", gotParams.Page, gotParams.Limit)
	}
	if gotFilter.PatientID != "PID-1" {
		t.Errorf("Expected patient_id filter forwarded, got %q", gotFilter.PatientID)
	}
	if gotFilter.From == nil || gotFilter.To == nil {
		t.Fatal("Expected date filters parsed")
	}
	if !gotFilter.To.After(*gotFilter.From) {
		t.Error("Expected 'to' after 'from'")
	}
}

func TestHandlerHistory_InvalidDate(t *testing.T) {
	handler := NewHandler(&mockService{})

	req := httptest.NewRequest("GET", "/prescriptions/history?from=yesterday", nil)
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"DOCTOR"}})

	w := httptest.NewRecorder()
	handler.History(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", w.Code)
	}
}

func TestHandlerGetVisit_NotFound(t *testing.T) {
	service := &mockService{
		GetVisitFunc: func(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error) {
			return nil, ErrRecordNotFound
		},
	}
	handler := NewHandler(service)

	req := httptest.NewRequest("GET", "/prescriptions/sn-404", nil)
	req = mux.SetURLVars(req, map[string]string{"serial": "sn-404"})
	req = authedRequest(req, &auth.Principal{UserID: "u1", Roles: []string{"DOCTOR"}})

	w := httptest.NewRecorder()
	handler.GetVisit(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHandlerGetVisit_Forbidden(t *testing.T) {
	service := &mockService{
		GetVisitFunc: func(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error) {
			return nil, ErrForbidden
		},
	}
	handler := NewHandler(service)

	req := httptest.NewRequest("GET", "/prescriptions/sn-1", nil)
	req = mux.SetURLVars(req, map[string]string{"serial": "sn-1"})
	req = authedRequest(req, &auth.Principal{UserID: "u1", PatientID: "PID-OTHER", Roles: []string{"PATIENT"}})

	w := httptest.NewRecorder()
	handler.GetVisit(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

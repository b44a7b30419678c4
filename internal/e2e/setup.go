//go:build integration

package e2e

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	httpserver "github.com/WailSalutem-Health-Care/prescription-service/internal/http"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/testutil"
)

// MockUpstreams hosts fake OCR, NER and scoring services so the full
// pipeline can run without any model containers.
type MockUpstreams struct {
	OCR     *httptest.Server
	NER     *httptest.Server
	Scoring *httptest.Server

	mu       sync.Mutex
	ocrText  string
	entities []ner.Span
	score    map[string]interface{}
}

// SetOCRText configures the text the fake OCR service returns
func (m *MockUpstreams) SetOCRText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ocrText = text
}

// SetEntities configures the spans the fake NER service returns
func (m *MockUpstreams) SetEntities(entities []ner.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = entities
}

// SetScore configures the response every disease scorer returns
func (m *MockUpstreams) SetScore(prediction int, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score = map[string]interface{}{
		"prediction": prediction,
		"confidence": confidence,
	}
}

func startMockUpstreams(t *testing.T) *MockUpstreams {
	t.Helper()

	m := &MockUpstreams{
		score: map[string]interface{}{"prediction": 0, "confidence": 0.9},
	}

	m.OCR = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		text := m.ocrText
		m.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))

	m.NER = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		entities := m.entities
		m.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"entities": entities})
	}))

	scoringRouter := mux.NewRouter()
	scoringRouter.HandleFunc("/score/{disease}", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		score := m.score
		m.mu.Unlock()
		json.NewEncoder(w).Encode(score)
	}).Methods("POST")
	m.Scoring = httptest.NewServer(scoringRouter)

	t.Cleanup(func() {
		m.OCR.Close()
		m.NER.Close()
		m.Scoring.Close()
	})

	return m
}

// TestServer represents a complete E2E test environment
type TestServer struct {
	Server        *httptest.Server
	DB            *sql.DB
	MockPublisher *testutil.MockPublisher
	Verifier      *auth.Verifier
	Upstreams     *MockUpstreams
}

// SetupE2ETest creates a complete test environment for E2E testing
// This includes:
// - Real PostgreSQL database
// - Real HTTP server with all routes
// - Mock RabbitMQ publisher (in-memory)
// - Mock OCR, NER and scoring upstreams
func SetupE2ETest(t *testing.T) *TestServer {
	t.Helper()

	// Setup real database
	db := testutil.SetupTestDB(t)

	// Create mock RabbitMQ publisher (in-memory only, no real RabbitMQ calls)
	mockPublisher := testutil.NewMockPublisher()

	// Start fake model services and point the pipeline clients at them
	upstreams := startMockUpstreams(t)
	t.Setenv("OCR_SERVICE_URL", upstreams.OCR.URL)
	t.Setenv("NER_SERVICE_URL", upstreams.NER.URL)
	t.Setenv("SCORING_SERVICE_URL", upstreams.Scoring.URL)

	// Load permissions from file
	perms, err := auth.LoadPermissions("../../permissions.yml")
	if err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}

	// Create test verifier; tokens from testutil validate against it
	verifier := testutil.CreateTestVerifier(t)

	// Setup router with real database and mock upstreams, no metrics
	router := httpserver.SetupRouter(db, verifier, perms, mockPublisher, nil)

	// Create test HTTP server
	server := httptest.NewServer(router)

	return &TestServer{
		Server:        server,
		DB:            db,
		MockPublisher: mockPublisher,
		Verifier:      verifier,
		Upstreams:     upstreams,
	}
}

// Cleanup cleans up all test resources
func (ts *TestServer) Cleanup(t *testing.T) {
	t.Helper()

	// Close HTTP server
	ts.Server.Close()

	// Clean up database
	testutil.CleanupTestDB(t, ts.DB)
	ts.DB.Close()
}

// NewClient creates a new HTTP test client for this server with the given token
func (ts *TestServer) NewClient(token string) *testutil.HTTPTestClient {
	return testutil.NewHTTPTestClient(ts.Server.URL, token)
}

package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/document"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ocr"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/prescription"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/telemetry"
)

// SetupRouter wires the analysis pipeline and initializes all routes.
func SetupRouter(db *sql.DB, verifier *auth.Verifier, perms auth.Permissions, publisher messaging.PublisherInterface, metrics *telemetry.Metrics) *mux.Router {
	// One scorer client serves all diseases; the disease is part of the
	// request path.
	scorer := screening.NewHTTPScorer()
	scorers := make(map[screening.Disease]screening.Scorer)
	for _, d := range screening.AllDiseases() {
		scorers[d] = scorer
	}

	repo := prescription.NewRepository(db)
	resolver := prescription.NewResolver(repo, publisher)
	service := prescription.NewService(
		document.NewNormalizer(),
		ocr.NewHTTPRecognizer(),
		ner.NewHTTPTagger(),
		extract.NewExtractor(),
		screening.NewEngine(scorers),
		resolver,
		repo,
		publisher,
		metrics,
	)
	handler := prescription.NewHandler(service)

	authn := auth.Middleware(verifier)
	requires := func(permission string) func(http.Handler) http.Handler {
		return auth.RequirePermission(permission, perms)
	}
	if metrics != nil {
		authn = auth.MiddlewareWithMetrics(verifier, metrics)
		requires = func(permission string) func(http.Handler) http.Handler {
			return auth.RequirePermissionWithMetrics(permission, perms, metrics)
		}
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("prescription-service"))
	if metrics != nil {
		r.Use(httpMetrics(metrics))
	}

	// Public health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"prescription-service"}`))
	}).Methods("GET")

	// Public demo analysis (no persistence, no identity)
	r.HandleFunc("/public/analyze", handler.AnalyzeDemo).Methods("POST")

	// Authenticated intake and history routes
	r.Handle("/prescriptions/analyze",
		authn(
			requires("prescription:analyze")(
				http.HandlerFunc(handler.Analyze),
			),
		),
	).Methods("POST")

	r.Handle("/prescriptions/history",
		authn(
			requires("prescription:view")(
				http.HandlerFunc(handler.History),
			),
		),
	).Methods("GET")

	r.Handle("/prescriptions/{serial}",
		authn(
			requires("prescription:view")(
				http.HandlerFunc(handler.GetVisit),
			),
		),
	).Methods("GET")

	return r
}

// httpMetrics records method, route template, status and latency for every
// completed request.
func httpMetrics(metrics *telemetry.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, sw.status, float64(time.Since(start).Milliseconds()))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/db"
	httpserver "github.com/WailSalutem-Health-Care/prescription-service/internal/http"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/telemetry"
)

func main() {
	log.Println("prescription-service starting")

	ctx := context.Background()

	// OpenTelemetry first so everything below is instrumented
	otelCfg := telemetry.LoadConfig()
	provider, err := telemetry.InitProvider(ctx, otelCfg)
	if err != nil {
		log.Printf("Warning: OpenTelemetry initialization failed: %v", err)
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("Warning: metrics initialization failed: %v", err)
		metrics = nil
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	publisher, err := messaging.NewPublisher()
	if err != nil {
		log.Printf("Warning: RabbitMQ unavailable, events will be dropped: %v", err)
	}
	if publisher != nil {
		defer publisher.Close()
	}

	authCfg, err := auth.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}
	verifier := auth.NewVerifier(authCfg)

	permsPath := os.Getenv("PERMISSIONS_FILE")
	if permsPath == "" {
		permsPath = "permissions.yml"
	}
	perms, err := auth.LoadPermissions(permsPath)
	if err != nil {
		log.Fatalf("Failed to load permissions from %s: %v", permsPath, err)
	}

	router := httpserver.SetupRouter(database, verifier, perms, publisher, metrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// WriteTimeout is generous: one upload waits on OCR, NER and four
	// model calls before responding.
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      httpserver.CORSMiddleware(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("✓ prescription-service listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during telemetry shutdown: %v", err)
		}
	}

	log.Println("✓ Shutdown complete")
}

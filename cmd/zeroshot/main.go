// Zeroshot orchestrator process - drives clusters of cooperating coding
// agents through plan/implement/validate/iterate/complete workflows.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/zeroshot-dev/zeroshot/internal/api"
	"github.com/zeroshot-dev/zeroshot/internal/healthsvc"
	"github.com/zeroshot-dev/zeroshot/internal/settings"
	"github.com/zeroshot-dev/zeroshot/pkg/orchestrator"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
	"github.com/zeroshot-dev/zeroshot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	storageDir := flag.String("storage-dir", getEnv("ZEROSHOT_STORAGE_DIR", "./data/clusters"),
		"Directory clusters are persisted under")
	httpAddr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8080"),
		"Address the introspection HTTP server listens on")
	healthAddr := flag.String("health-addr", getEnv("HEALTH_ADDR", ":8090"),
		"Address the gRPC health service listens on")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	if settingsPath := os.Getenv("ZEROSHOT_SETTINGS_FILE"); settingsPath != "" {
		s, err := settings.Load(settingsPath)
		if err != nil {
			log.Fatalf("failed to load settings: %v", err)
		}
		if s.StorageDir != "" {
			*storageDir = s.StorageDir
		}
		if s.HTTPAddr != "" {
			*httpAddr = s.HTTPAddr
		}
		if s.HealthAddr != "" {
			*healthAddr = s.HealthAddr
		}
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("Starting %s", version.Full())
	log.Printf("Storage directory: %s", *storageDir)

	// Provider CLI adapters are out of scope here; TaskRunner is the
	// pluggable seam a real deployment wires a provider adapter into.
	orch, err := orchestrator.Create(*storageDir, runner.NewMockTaskRunner())
	if err != nil {
		log.Fatalf("failed to start orchestrator: %v", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			log.Printf("error closing orchestrator: %v", err)
		}
	}()

	healthLn, err := net.Listen("tcp", *healthAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *healthAddr, err)
	}
	healthSvc, _, err := healthsvc.Serve(healthLn, orch)
	if err != nil {
		log.Fatalf("failed to start health service: %v", err)
	}
	log.Printf("Health service listening on %s", *healthAddr)

	apiServer := api.NewServer(orch)
	go func() {
		log.Printf("HTTP server listening on %s", *httpAddr)
		if err := apiServer.Start(*httpAddr); err != nil {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down")
	healthSvc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("error shutting down HTTP server: %v", err)
	}
}

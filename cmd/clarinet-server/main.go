// Clarinet server.
//
// Serves the record/auth/admin API and the DICOMweb proxy over HTTP,
// backed by PostgreSQL and an optional PACS peer. Replaces the FastAPI
// application as the process entry point.
//
// Usage:
//
//	clarinet-server --config /etc/clarinet/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/dicom"
	"github.com/radionest/clarinet/internal/dicomcache"
	"github.com/radionest/clarinet/internal/dicomweb"
	"github.com/radionest/clarinet/internal/flow"
	"github.com/radionest/clarinet/internal/httpapi"
	"github.com/radionest/clarinet/internal/session"
	"github.com/radionest/clarinet/internal/slicer"
	"github.com/radionest/clarinet/internal/store"
	"github.com/radionest/clarinet/internal/sweeper"
)

var flagConfig = flag.String("config", "/etc/clarinet/config.yaml", "Config file path")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	auth := session.New(db, cfg)

	dicomClient := dicom.NewClient(
		dicom.Node{
			Host:       cfg.PACSHost,
			Port:       cfg.PACSPort,
			AET:        cfg.PACSAET,
			CallingAET: cfg.PACSCallingAET,
		},
		cfg.DICOMWorkerPool,
		time.Duration(cfg.PACSFindTimeout)*time.Second,
		time.Duration(cfg.PACSGetTimeout)*time.Second,
	)

	cache := dicomcache.New(dicomcache.Config{
		RootDir:        cfg.DicomwebCacheDir(),
		DiskTTL:        time.Duration(cfg.DicomwebCacheTTLHours) * time.Hour,
		MaxSizeBytes:   int64(cfg.DicomwebCacheMaxSizeGB * (1 << 30)),
		MemoryTTL:      time.Duration(cfg.DicomwebCacheMemoryTTLMinutes) * time.Minute,
		MemoryCapacity: cfg.DicomwebCacheMemoryMaxEntries,
	})

	executor := flow.NewActionExecutor(db, 30*time.Second)
	registerActionHandlers(executor)
	flows := flow.New(db, executor)
	if err := registerDefaultFlows(flows); err != nil {
		log.Fatalf("failed to register flow definitions: %v", err)
	}

	slicerHelperPath := os.Getenv("CLARINET_SLICER_HELPER_SCRIPT")
	if slicerHelperPath == "" {
		slicerHelperPath = "/etc/clarinet/slicer_helper.py"
	}
	slicerSvc, err := slicer.New(slicerHelperPath, time.Duration(cfg.SlicerTimeout)*time.Second)
	if err != nil {
		log.Printf("slicer helper unavailable, Slicer-backed record types will fail: %v", err)
	}

	sessionCleanup := sweeper.NewSessionCleanup(db, cfg)
	cacheCleanup := sweeper.NewCacheCleanup(cache, cfg)
	go sessionCleanup.Run(ctx)
	go cacheCleanup.Run(ctx)

	root := chi.NewRouter()
	apiServer := httpapi.New(db, auth, flows, slicerSvc, cfg)
	root.Mount("/api", apiServer.Router())

	dicomwebHandler := &dicomweb.Handler{Client: dicomClient, Cache: cache, PublicURL: strings.TrimRight(cfg.RootURL, "/") + "/dicom-web"}
	root.Route("/dicom-web", dicomwebHandler.Mount)

	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("shutdown signal: %v", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("clarinet-server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
	log.Println("server stopped")
}

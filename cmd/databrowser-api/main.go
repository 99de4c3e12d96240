// Command databrowser-api serves the databrowser's HTTP surface: search,
// ingestion, auth, and (when enabled) the chunk-store front-end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/freva-nextgen/databrowser/internal/authgate"
	"github.com/freva-nextgen/databrowser/internal/bus"
	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/chunkstore"
	"github.com/freva-nextgen/databrowser/internal/config"
	"github.com/freva-nextgen/databrowser/internal/docstore"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/httpapi"
	"github.com/freva-nextgen/databrowser/internal/ingest"
	"github.com/freva-nextgen/databrowser/internal/logging"
	"github.com/freva-nextgen/databrowser/internal/recorder"
	"github.com/freva-nextgen/databrowser/internal/search"
)

func main() {
	// Load environment from .env (or fallback to example.env) before the
	// logger is initialized, so DEBUG is respected from the start.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	logging.Init("databrowser-api.log", level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := search.NewClient(cfg.Solr.LatestURL, cfg.Solr.HistoricalURL)
	translator := flavour.New()

	var rec *recorder.Recorder
	var docStore *docstore.Store
	if cfg.Doc.DSN != "" {
		pool, err := docstore.OpenPool(ctx, cfg.Doc.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open document store pool")
		}

		docStore, err = docstore.New(ctx, pool)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize document store schema")
		}
		defer docStore.Close()
		rec = recorder.New(docStore)
	} else {
		log.Warn().Msg("API_MONGO_DSN unset: search queries won't be recorded and userdata is disabled")
	}

	facade := search.NewFacade(client, translator, rec)

	var ingestor *ingest.Ingestor
	if docStore != nil {
		ingestor = ingest.New(client, docStore)
	}

	gate := authgate.New(cfg.OIDC.DiscoveryURL, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret)

	var chunks *chunkstore.Store
	if cfg.HasService("zarr-stream") {
		redisCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to chunk-store cache")
		}
		publisher := bus.New(cfg.Bus.Brokers, cfg.Bus.Topic)
		proxyBaseURL := fmt.Sprintf("http://localhost:%d/api/freva-nextgen/data-portal", cfg.Port)
		chunks = chunkstore.New(facade, publisher, redisCache, proxyBaseURL)
	} else {
		log.Info().Msg("zarr-stream not in API_SERVICES: chunk-store routes answer 503")
	}

	srv := httpapi.New(facade, translator, ingestor, gate, chunks)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("databrowser-api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

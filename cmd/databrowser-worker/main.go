// Command databrowser-worker runs the materialization pipeline's
// process-parallel consumer (§4.7): it drains the data-portal bus and
// opens/chunks datasets into the shared cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/freva-nextgen/databrowser/internal/bus"
	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/config"
	"github.com/freva-nextgen/databrowser/internal/dataset"
	"github.com/freva-nextgen/databrowser/internal/logging"
	"github.com/freva-nextgen/databrowser/internal/worker"
)

func main() {
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
	logging.Init("databrowser-worker.log", level)

	if !cfg.HasService("zarr-stream") {
		log.Fatal().Msg("zarr-stream not in API_SERVICES: nothing for the worker to do")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}

	b := bus.New(cfg.Bus.Brokers, cfg.Bus.Topic)
	sub := b.Subscribe("databrowser-worker")
	defer sub.Close()

	pool := worker.NewPool(sub, redisCache, openDataset, nil)

	log.Info().Int("workers", cfg.Workers).Msg("databrowser-worker consuming data-portal topic")
	if err := pool.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker pool exited with error")
	}
	log.Info().Msg("shut down")
}

// openDataset is the dataset.OpenFunc this binary wires the worker pool to.
// Concrete format readers (NetCDF, GRIB, zarr passthrough, ...) are outside
// this repository's scope (internal/dataset's doc comment); a deployment
// supplies its own by replacing this function with one backed by a real
// reader library.
func openDataset(ctx context.Context, uri string) (dataset.Dataset, error) {
	return dataset.Dataset{}, fmt.Errorf("databrowser-worker: no dataset backend configured for %q", uri)
}

// Command swarmd runs the swarm coordination core as a standalone
// process: it builds a Coordinator over an initial topology, exposes the
// Prometheus metrics registry over HTTP, and shuts down cleanly on
// SIGINT/SIGTERM.
//
// Configuration (environment variables):
//   - SWARMD_TOPOLOGY: initial topology kind (mesh, hierarchical, star,
//     ring, adaptive); default "mesh"
//   - SWARMD_HUB: hub agent id, only meaningful for the star topology
//   - SWARMD_METRICS_ADDR: listen address for the /metrics endpoint;
//     default ":9090"
//   - SWARMD_HOST_METRICS: "false" to disable the host-backed resource
//     controller (real CPU/memory pressure feeding the bottleneck
//     detector) and fall back to an empty static snapshot; default
//     "true"
//   - SWARMD_DEBUG: "true" for debug-level, human-readable logging
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/swarmcore/internal/bottleneck"
	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/swarm"
	"github.com/dreamware/swarmcore/internal/telemetry"
	"github.com/dreamware/swarmcore/internal/topology"
)

func main() {
	logging.Init(logging.Config{Debug: os.Getenv("SWARMD_DEBUG") == "true"})
	log := logging.WithComponent("swarmd")

	kind := topology.Kind(envOr("SWARMD_TOPOLOGY", string(topology.Mesh)))
	hub := os.Getenv("SWARMD_HUB")

	// The host-backed controller feeds the bottleneck detector real
	// CPU/memory pressure; its queue view is the coordinator's own mail
	// backlog, captured by reference since the coordinator is built one
	// line later.
	var coordinator *swarm.Coordinator
	var opts []swarm.Option
	if envOr("SWARMD_HOST_METRICS", "true") == "true" {
		hostCtl := bottleneck.NewHostController(bottleneck.WithQueueSource(func() bottleneck.QueueSnapshot {
			if coordinator == nil {
				return bottleneck.QueueSnapshot{}
			}
			return coordinator.QueueSnapshot()
		}))
		opts = append(opts, swarm.WithResourceController(hostCtl))
	}

	coordinator, err := swarm.New(kind, hub, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build swarm coordinator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start swarm coordinator")
	}
	log.Info().Str("topology", string(kind)).Msg("swarm coordinator started")

	metricsAddr := envOr("SWARMD_METRICS_ADDR", ":9090")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()
	log.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown error")
	}

	coordinator.Close()
	log.Info().Msg("swarm coordinator stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Command ffe runs the Fatigue Fusion Engine evaluation thread: on a fixed
// 10 Hz ticker it reads the latest vision/biometric data and runs
// VFE->BFE->FC->SC->SM, and it serves a Prometheus metrics endpoint. A new
// sample does not wake the loop early; it is picked up on the next tick.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jeremiafourie/cogniflight-edge/internal/bus"
	"github.com/jeremiafourie/cogniflight-edge/internal/ingress"
	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/pkg/logging"
)

const evalTickRate = 100 * time.Millisecond // 10 Hz

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	natsURL := flag.String("nats-url", "", "NATS server URL; empty uses the in-process store")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logging.SetLevel(*logLevel)
	log := logging.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := newStore(*natsURL, log)
	defer closeStore()

	loop := ingress.NewLoop(ingress.DefaultConfig(), store)
	store.Subscribe("", loop.Dispatch)

	loop.StateManager().Subscribe(func(snap model.StateSnapshot) {
		if err := store.Put(bus.Record{Key: bus.KeyStateCurrent, Value: snap, TimestampS: snap.TimestampS, Service: snap.Service}); err != nil {
			log.WithError(err).Warn("failed to publish state snapshot")
		}
	})

	metricsServer := startMetricsServer(*metricsAddr, log)
	defer shutdownMetricsServer(metricsServer, log)

	go runEvaluationLoop(ctx, loop, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down fatigue fusion engine")
	cancel()
	time.Sleep(100 * time.Millisecond)
	log.Info("fatigue fusion engine stopped")
}

func runEvaluationLoop(ctx context.Context, loop *ingress.Loop, log *logrus.Logger) {
	ticker := time.NewTicker(evalTickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := loop.Tick(); err != nil {
				log.WithError(err).Debug("fusion tick skipped")
			}
		case <-ctx.Done():
			return
		}
	}
}

func newStore(natsURL string, log *logrus.Logger) (bus.Store, func()) {
	if natsURL == "" {
		s := bus.NewMemoryStore()
		return s, func() { _ = s.Close() }
	}

	cfg := bus.DefaultNATSConfig()
	cfg.URL = natsURL
	s, err := bus.NewNATSStore(cfg)
	if err != nil {
		log.WithError(err).Fatalf("failed to connect to NATS at %s", natsURL)
	}
	return s, func() { _ = s.Close() }
}

func startMetricsServer(addr string, log *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server error")
		}
	}()
	log.WithField("addr", addr).Info("metrics server listening")
	return srv
}

func shutdownMetricsServer(srv *http.Server, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("metrics server shutdown error")
	}
}

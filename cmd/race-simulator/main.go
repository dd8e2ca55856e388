package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	simulator "github.com/radieske/race-odds-monitor/internal/race-simulator"
	"github.com/radieske/race-odds-monitor/internal/shared/config"
	"github.com/radieske/race-odds-monitor/internal/shared/logger"
	"github.com/radieske/race-odds-monitor/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "race-simulator"
		cfg.HTTPPort, cfg.MetricsPort = "8090", "9094"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Métricas Prometheus
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_sim_pages_served_total", Help: "páginas servidas por tipo"}, []string{"page"})
	drifted := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_sim_odds_moves_total", Help: "odds alteradas"})
	prometheus.MustRegister(pages, drifted)

	sim := simulator.New(time.Now().UnixNano(), time.Now())
	srv := simulator.NewServer(log, sim)
	srv.OnPage = func(kind string) { pages.WithLabelValues(kind).Inc() }
	srv.OnDrift = func(n int) { drifted.Add(float64(n)) }

	// odds mudam a cada 3s
	go srv.Run(ctx, 3*time.Second)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, log)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = httpSrv.Shutdown(sctx)
		if msrv != nil {
			_ = msrv.Shutdown(sctx)
		}
	}()

	log.Info("race simulator running",
		zap.String("addr", httpSrv.Addr),
		zap.String("day", sim.Day().Format("2006-01-02")),
		zap.String("program", fmt.Sprintf("http://localhost:%s/en/resultats-et-rapports-du-jour/%s", cfg.HTTPPort, sim.Day().Format("2006-01-02"))),
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("public server error", zap.Error(err))
	}
	log.Info("race simulator stopped")
}

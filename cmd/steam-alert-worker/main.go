package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/publisher"
	sharedcache "github.com/radieske/race-odds-monitor/internal/shared/cache"
	"github.com/radieske/race-odds-monitor/internal/shared/config"
	"github.com/radieske/race-odds-monitor/internal/shared/kafka"
	"github.com/radieske/race-odds-monitor/internal/shared/logger"
	"github.com/radieske/race-odds-monitor/internal/shared/metrics"
	"github.com/radieske/race-odds-monitor/internal/steam-alert/consumer"
	"github.com/radieske/race-odds-monitor/internal/steam-alert/dedup"
	"github.com/radieske/race-odds-monitor/internal/steam-alert/notifier"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "steam-alert-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}
	checks := metrics.Checks{}

	// Redis só para dedup; sem ele cada réplica avisa por conta própria
	var deduper consumer.Deduper
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; alert dedup disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		deduper = dedup.NewRedisDedup(redisClient, cfg.AlertDedupTTL)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := publisher.EnsureTopics(ctx, brokers, log, cfg.TopicSteamAlerts, cfg.TopicAlertsDLQ); err != nil {
			log.Warn("failed to create kafka topics", zap.Error(err))
		}
	}

	// consumer group steam-alert-worker
	reader := kafka.NewReader(brokers, cfg.TopicSteamAlerts, "steam-alert-worker")
	defer reader.Close()
	dlqWriter := kafka.NewWriter(brokers, cfg.TopicAlertsDLQ)
	defer dlqWriter.Close()

	// Métricas Prometheus
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "steam_alert_messages_consumed_total", Help: "alertas consumidos"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "steam_alert_duplicates_total", Help: "alertas descartados pelo dedup"})
	notified := prometheus.NewCounter(prometheus.CounterOpts{Name: "steam_alert_notifications_total", Help: "avisos entregues"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "steam_alert_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, duplicates, notified, errorsBy)

	if cfg.AlertWebhookURL == "" {
		log.Warn("ALERT_WEBHOOK_URL not set; alerts will only be logged")
	}

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Dedup:       deduper,
		Notifier:    notifier.NewWebhook(cfg.AlertWebhookURL, log),
		DLQ:         dlqWriter,
		OnConsumed:  func() { consumed.Inc() },
		OnDuplicate: func() { duplicates.Inc() },
		OnNotified:  func() { notified.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, checks.Health(), log)
	defer func() {
		if msrv != nil {
			_ = msrv.Close()
		}
	}()

	log.Info("steam-alert-worker started",
		zap.String("consume", cfg.TopicSteamAlerts),
		zap.String("dlq", cfg.TopicAlertsDLQ),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped with error", zap.Error(err))
	}
	log.Info("steam-alert-worker stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/archive"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/cache"
	httpapi "github.com/radieske/race-odds-monitor/internal/race-monitor/http"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/poller"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/publisher"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/pubsub"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/repo"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/service"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/ws"
	sharedcache "github.com/radieske/race-odds-monitor/internal/shared/cache"
	"github.com/radieske/race-odds-monitor/internal/shared/config"
	"github.com/radieske/race-odds-monitor/internal/shared/db"
	"github.com/radieske/race-odds-monitor/internal/shared/logger"
	"github.com/radieske/race-odds-monitor/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "race-monitor"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checks := metrics.Checks{}

	// armazenamento: Postgres ou memória (dev local)
	var store service.Store
	switch cfg.StorageDriver {
	case "memory":
		store = repo.NewMemory()
		log.Warn("using in-memory store; data is lost on restart")
	default:
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := db.Migrate(ctx, pg); err != nil {
			log.Fatal("failed to migrate postgres", zap.Error(err))
		}
		log.Info("postgres connected")
		store = repo.NewPostgres(pg)
	}

	// Redis: cache do retrato de /races e pub/sub para o /ws (opcional)
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; cache and ws broadcast disabled", zap.Error(err))
		redisClient = nil
	}
	var (
		snapshot    service.SnapshotCache
		broadcaster service.Broadcaster
	)
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis connected")
		snapshot = cache.NewSnapshot(redisClient, time.Second)
		broadcaster = pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Kafka: eventos de odds, alertas e resultados (opcional)
	var events service.EventPublisher
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		if cfg.Env == "local" || cfg.Env == "dev" {
			tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
			if err := publisher.EnsureTopics(tctx, brokers, log, cfg.TopicOddsUpdates, cfg.TopicSteamAlerts, cfg.TopicRaceResults); err != nil {
				log.Warn("failed to create kafka topics", zap.Error(err))
			}
			tcancel()
		}
		kp := publisher.NewKafkaPublisher(brokers, publisher.Topics{
			OddsUpdates: cfg.TopicOddsUpdates,
			SteamAlerts: cfg.TopicSteamAlerts,
			RaceResults: cfg.TopicRaceResults,
		}, log)
		defer kp.Close()
		events = kp
		log.Info("kafka publisher ready", zap.Strings("brokers", brokers))
	}

	// S3: arquivo das corridas finalizadas (opcional)
	var archiver service.Archiver
	if cfg.S3Bucket != "" {
		a, err := archive.NewS3Archiver(ctx, archive.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, log)
		if err != nil {
			log.Fatal("failed to init archive", zap.Error(err))
		}
		archiver = a
		log.Info("race archive enabled", zap.String("bucket", cfg.S3Bucket))
	}

	// navegador headless compartilhado pelos scrapes
	fetcher := scraper.NewRodFetcher(log, cfg.BrowserBin, cfg.ScrapeTimeout)
	defer fetcher.Close()
	source := scraper.New(log, fetcher, cfg.SourceBaseURL)

	// Métricas Prometheus
	scrapes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_monitor_scrapes_total", Help: "scrapes de corrida por resultado"}, []string{"result"})
	scrapeDur := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "race_monitor_scrape_duration_seconds", Help: "duração do scrape", Buckets: prometheus.ExponentialBuckets(0.25, 2, 8)})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_monitor_steam_alerts_total", Help: "alertas de steam (borda de subida)"})
	finalized := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_monitor_races_finalized_total", Help: "corridas encerradas com vencedor"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_monitor_errors_total", Help: "erros por estágio"}, []string{"stage"})
	tasks := prometheus.NewGauge(prometheus.GaugeOpts{Name: "race_monitor_active_tasks", Help: "tarefas de monitoramento ativas"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_monitor_http_requests_total", Help: "requisições por rota e status"}, []string{"route", "status"})
	reqDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "race_monitor_http_request_duration_seconds", Help: "latência por rota"}, []string{"route"})
	wsConns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "race_monitor_ws_connections", Help: "conexões WebSocket abertas"})
	prometheus.MustRegister(scrapes, scrapeDur, alerts, finalized, errorsBy, tasks, requests, reqDur, wsConns)

	svc := service.New(service.Deps{
		Log:             log,
		Store:           store,
		Source:          source,
		Cache:           snapshot,
		Publisher:       events,
		Broadcaster:     broadcaster,
		Archiver:        archiver,
		AutoSwitchAfter: cfg.AutoSwitchAfter,
		SyncTimeout:     cfg.ScrapeTimeout + 5*time.Second,
		SourceName:      cfg.ServiceName,
	})
	svc.OnScrape = func(ok bool, d time.Duration) {
		result := "ok"
		if !ok {
			result = "error"
		}
		scrapes.WithLabelValues(result).Inc()
		scrapeDur.Observe(d.Seconds())
	}
	svc.OnAlert = func() { alerts.Inc() }
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "race_monitor_alerting_runners", Help: "runners em condição de alerta (D4 + steam)"},
		func() float64 { return float64(svc.AlertingRunners()) },
	))
	svc.OnFinalize = func() { finalized.Inc() }
	svc.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }
	checks["store"] = svc.Ping // postgres (ou memória)

	orch := poller.NewOrchestrator(log, svc, poller.Config{
		Interval:     cfg.OrchestratorInterval,
		PollInterval: cfg.PollInterval,
	})
	orch.OnTasks = func(n int) { tasks.Set(float64(n)) }

	// WebSocket só faz sentido com o pub/sub ligado
	api := &httpapi.API{
		Log:     log,
		Races:   svc,
		Timeout: cfg.ScrapeTimeout + 5*time.Second,
		OnRequest: func(route string, status int, d time.Duration) {
			requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			reqDur.WithLabelValues(route).Observe(d.Seconds())
		},
	}
	var hub *ws.Hub
	if redisClient != nil {
		hub = ws.NewHub(log, func(*http.Request) bool { return true })
		hub.OnConnect = wsConns.Inc
		hub.OnDisconnect = wsConns.Dec
		api.WS = hub.HandleWS
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, checks.Health(), log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return orch.Run(gctx) })
	if hub != nil {
		g.Go(func() error { return ws.RunRedisSubscriber(gctx, redisClient, cfg.RedisPubSubChannel, hub, log) })
	}
	if cfg.DiscoverOnStartup {
		g.Go(func() error {
			if _, err := svc.DiscoverToday(gctx); err != nil && gctx.Err() == nil {
				log.Warn("auto-discovery failed", zap.Error(err))
			}
			return nil
		})
	}

	log.Info("race-monitor started")
	if err := g.Wait(); err != nil {
		log.Error("race-monitor stopped with error", zap.Error(err))
		return
	}
	log.Info("race-monitor stopped")
}

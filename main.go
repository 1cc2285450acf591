package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homehub-cloud/internal/audit"
	"homehub-cloud/internal/auth"
	"homehub-cloud/internal/config"
	"homehub-cloud/internal/eventing"
	eventingrepo "homehub-cloud/internal/eventing/infrastructure/postgres"
	"homehub-cloud/internal/incidents/application"
	"homehub-cloud/internal/incidents/application/events"
	"homehub-cloud/internal/incidents/history"
	incidentrepo "homehub-cloud/internal/incidents/infrastructure/postgres"
	"homehub-cloud/internal/incidents/interfaces"
	incidenthttp "homehub-cloud/internal/incidents/interfaces/http"
	"homehub-cloud/internal/observability/logging"
	"homehub-cloud/internal/observability/metrics"
	placesrepo "homehub-cloud/internal/places/infrastructure/postgres"
	"homehub-cloud/internal/station"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatal("config load failed", zap.Error(err))
	}
	log := logging.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.PostgresDSN == "" {
		log.Fatal("PG_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("db ping failed", zap.Error(err))
	}

	metrics.Init(db, log)

	incidentStore := incidentrepo.NewIncidentRepository(db)
	placeStore := placesrepo.NewPlaceRepository(db)
	varStore := placesrepo.NewVariableRepository(db)

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.IncidentAdded{})
	registry.Register(events.IncidentChanged{})
	registry.Register(events.IncidentCompleted{})
	registry.Register(events.MonitoringStationResponse{})
	registry.Register(events.HubIncidentReport{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	eventDispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	bus := eventing.NewPublisher(outboxStore, eventDispatcher, cfg.DefaultPlaceID, baseBus)

	var stationClient station.Client
	if cfg.StationBaseURL != "" {
		client, err := station.NewHTTPClient(cfg.StationBaseURL, cfg.StationToken)
		if err != nil {
			log.Fatal("station client failed", zap.Error(err))
		}
		stationClient = client
	} else {
		log.Warn("STATION_BASE_URL not set, monitoring requests disabled")
	}

	hist := history.NewLogListener(log)

	platform, err := application.NewPlatform(incidentStore, varStore, hist, bus, stationClient, cfg.Incidents, log)
	if err != nil {
		log.Fatal("platform service failed", zap.Error(err))
	}
	hub, err := application.NewHub(incidentStore, varStore, hist, bus, stationClient, application.NewVariableHubModel(varStore), cfg.Incidents, log)
	if err != nil {
		log.Fatal("hub service failed", zap.Error(err))
	}
	mock, err := application.NewMock(incidentStore, varStore, hist, bus, cfg.Incidents, log)
	if err != nil {
		log.Fatal("mock service failed", zap.Error(err))
	}
	defer mock.Close()
	dispatcher, err := application.NewDispatcher(platform, hub, mock)
	if err != nil {
		log.Fatal("incident dispatcher failed", zap.Error(err))
	}

	if err := interfaces.RegisterStationResponseConsumer(baseBus, platform, processedStore); err != nil {
		log.Fatal("station response consumer failed", zap.Error(err))
	}
	hubReports, err := interfaces.NewHubReportConsumer(dispatcher, varStore, placeStore, log)
	if err != nil {
		log.Fatal("hub report consumer failed", zap.Error(err))
	}
	if err := hubReports.Register(baseBus, processedStore); err != nil {
		log.Fatal("hub report consumer failed", zap.Error(err))
	}

	placeChecker := auth.NewPlaceChecker(placeStore)
	auditRepo := audit.NewRepository(db)
	incidentHandler, err := incidenthttp.NewHandler(dispatcher, placeStore, placeChecker, auditRepo, cfg.Incidents.MaxIncidentsPerPlace, log)
	if err != nil {
		log.Fatal("incident handler failed", zap.Error(err))
	}
	stationHandler, err := incidenthttp.NewStationHandler(bus, mock, placeStore, log)
	if err != nil {
		log.Fatal("station handler failed", zap.Error(err))
	}
	hubReportHandler, err := incidenthttp.NewHubReportHandler(bus, log)
	if err != nil {
		log.Fatal("hub report handler failed", zap.Error(err))
	}
	stream := incidenthttp.NewStream(baseBus, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go platform.Pending().Run(ctx, cfg.Incidents.CancelCacheSweep())

	mux := http.NewServeMux()
	mux.Handle("/api/v1/places/", incidentHandler)
	mux.Handle("/api/v1/incidents/stream", stream)
	mux.Handle("/api/v1/station/", stationHandler)
	mux.Handle("/api/v1/hub/reports", hubReportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), log)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func loggingMiddleware(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"villaops/internal/api"
	"villaops/internal/calendar"
	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/export"
	"villaops/internal/google"
	"villaops/internal/logging"
	"villaops/internal/metrics"
	"villaops/internal/models"
	"villaops/internal/notify"
	"villaops/internal/repository"
	"villaops/internal/service"
	"villaops/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const scheduleDays = 30

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	logger := logging.Component(base, "api-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, base)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	startMetrics(ctx, cfg, logger)

	redisClient := initRedis(ctx, cfg, base)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	cache := initCache(redisClient, base)

	feed := events.NewFeed(cfg.Realtime.SubscriberBuffer, logging.Component(base, "feed"))
	defer feed.Close()
	if redisClient != nil {
		bridge := events.NewRedisBridge(redisClient, cfg.Realtime.Channel, feed, logging.Component(base, "bridge"))
		if err := bridge.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("change bridge disabled")
		}
	}
	sync := events.NewSyncService(feed, logging.Component(base, "sync"))

	exporter := export.NewExporter(db, cfg.Exports.Path, logging.Component(base, "export"))
	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, exporter, base)
	var syncWorker domain.SyncWorker
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
	}

	svc := initServices(ctx, cfg, db, cache, feed, sync, syncWorker, base)

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(base, "backup"))
	go backup.Start(ctx)

	if cfg.Telegram.DigestTime != "" {
		digestLogger := logging.Component(base, "digest")
		if err := notify.StartDigest(ctx, cfg.Telegram.DigestTime, svc.Notifications.SendDailyDigest, digestLogger); err != nil {
			logger.Warn().Err(err).Msg("daily digest disabled")
		}
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, api.NewCalendarService(svc.Calendar, db), base)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(cfg.API, cfg.Webhooks, svc, base)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

// loadProperties prefers the catalog file; inline properties in the main
// config are the fallback.
func loadProperties(cfg *config.Config) (string, []models.Property, error) {
	path := os.Getenv("PROPERTIES_PATH")
	if path == "" {
		path = cfg.PropertiesFile
	}
	if path == "" {
		return "", cfg.Properties, nil
	}
	properties, err := config.LoadProperties(path)
	if err != nil {
		return "", nil, err
	}
	return path, properties, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	path, properties, err := loadProperties(cfg)
	if err != nil {
		db.Close()
		logger.Error().Err(err).Msg("load properties")
		return nil, err
	}
	if err := db.SyncProperties(ctx, properties); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync properties: %w", err)
	}
	logger.Info().Int("properties", len(properties)).Msg("property catalog loaded")

	if path != "" {
		go func() {
			err := config.WatchProperties(ctx, path, logger, func(properties []models.Property) {
				if err := db.SyncProperties(ctx, properties); err != nil {
					logger.Error().Err(err).Msg("sync reloaded properties")
				}
			})
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("property catalog watch stopped")
			}
		}()
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initCache(client *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	memory := repository.NewMemoryCache()
	if client == nil {
		return memory
	}
	return repository.NewFailoverCache(repository.NewRedisCache(client, "villaops:"), memory, logging.Component(logger, "cache"))
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	logger.Info().Msg("google sheets connected")

	retryPolicy := worker.DefaultRetryPolicy()
	w := worker.NewSheetsWorker(db, sheets, redisClient, retryPolicy, logging.Component(logger, "sheets-worker"))
	w.SetGridLoader(func(ctx context.Context, start time.Time, days int) (*export.Grid, error) {
		grid, _, err := exporter.Load(ctx, start, days)
		return grid, err
	})
	go w.Start(ctx)
	go refreshSchedule(ctx, w, logger)
	return w
}

// refreshSchedule rewrites the schedule sheet every hour.
func refreshSchedule(ctx context.Context, w *worker.SheetsWorker, logger *zerolog.Logger) {
	enqueue := func() {
		if err := w.EnqueueSyncSchedule(ctx, time.Now(), scheduleDays); err != nil {
			logger.Warn().Err(err).Msg("enqueue schedule sync")
		}
	}
	enqueue()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

func initServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	cache domain.CacheRepository,
	feed *events.Feed,
	sync *events.SyncService,
	syncWorker domain.SyncWorker,
	logger *zerolog.Logger,
) api.Services {
	var sender domain.MessageSender
	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram disabled")
		} else {
			sender = notify.NewTelegramNotifier(bot, logging.Component(logger, "telegram"))
		}
	}

	serviceLogger := logging.Component(logger, "service")
	syncLog := service.NewSyncLogService(db, syncWorker, serviceLogger)
	notifications := service.NewNotificationService(db, sync, sender, cfg.Telegram.ManagerChatIDs, serviceLogger)
	jobs := service.NewJobService(db, sync, notifications, syncLog, cfg.Booking, serviceLogger)
	bookings := service.NewBookingService(db, sync, syncWorker, syncLog, jobs, cfg.Booking, serviceLogger)
	staff := service.NewStaffService(db, sync, serviceLogger)
	approvals := service.NewApprovalService(db, bookings, notifications, syncLog, cfg.Approvals, serviceLogger)

	live := calendar.NewLiveService(db, sync, logging.Component(logger, "live"))
	bookings.SetConflictDetector(live)
	live.Subscribe(ctx, calendar.Query{}, func(op events.Op, ev models.CalendarEvent) {
		if ev.Conflict {
			logger.Warn().
				Str("event", ev.ID).
				Str("op", string(op)).
				Int64("property_id", ev.PropertyID).
				Msg("calendar conflict")
		}
	})

	ttl := time.Duration(cfg.Realtime.CacheTTLSeconds) * time.Second
	cal := calendar.NewService(db, cache, ttl, logging.Component(logger, "calendar"))
	cal.InvalidateOn(ctx, feed)

	return api.Services{
		Repo:          db,
		Cache:         cache,
		Feed:          feed,
		Calendar:      cal,
		Live:          live,
		Bookings:      bookings,
		Jobs:          jobs,
		Staff:         staff,
		Notifications: notifications,
		Approvals:     approvals,
		SyncLog:       syncLog,
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

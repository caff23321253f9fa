package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Totarae/URLManager/internal/auth"
	"github.com/Totarae/URLManager/internal/config"
	"github.com/Totarae/URLManager/internal/database"
	"github.com/Totarae/URLManager/internal/handlers"
	"github.com/Totarae/URLManager/internal/repositories"
	"github.com/Totarae/URLManager/internal/router"
	"github.com/Totarae/URLManager/internal/service"
	"github.com/Totarae/URLManager/internal/sitemap"
	"github.com/Totarae/URLManager/internal/storage"
	"github.com/Totarae/URLManager/internal/visits"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Инициализация конфигурации
	cfg := config.NewConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Выбор хранилища по режиму работы
	var store storage.Store
	switch cfg.Mode {
	case "database":
		if err := database.RunMigrations(cfg.DatabaseDSN, cfg.PgMigrationsPath, logger); err != nil {
			logger.Fatal("Ошибка применения миграций", zap.Error(err))
		}
		db, err := database.NewDB(cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Fatal("Ошибка подключения к БД", zap.Error(err))
		}
		defer db.Close()
		store = repositories.NewURLRepository(db)
	case "file":
		store = storage.NewMemStore(cfg.FileStoragePath)
	default:
		store = storage.NewMemStore("")
	}

	// Фоновый трекер посещений; путь разрешения от него не зависит
	var sink service.VisitSink
	if cfg.TrackVisits {
		tracker := visits.NewTracker(store, logger, cfg.VisitQueueSize)
		tracker.Run(ctx)
		defer tracker.Close()
		sink = tracker
	}

	resolver := service.NewResolver(store, logger, sink, cfg.MaxRedirectDepth, cfg.DefaultRedirectCode)
	generator := sitemap.NewGenerator(store, logger, cfg.BaseURL)
	authService := auth.New(cfg.AuthSecret)

	handler := handlers.NewHandler(resolver, generator, authService, logger, cfg.TrustedSubnet)
	r := router.NewRouter(handler, logger)

	server := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ошибка остановки сервера", zap.Error(err))
		}
	}()

	logger.Info("Сервер запущен", zap.String("address", cfg.ServerAddress))

	var err error
	if cfg.EnableHTTPS {
		err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Ошибка при запуске сервера", zap.Error(err))
	}
}

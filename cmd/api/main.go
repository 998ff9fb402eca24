package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/config"
	"github.com/jorgepsendziuk/pinovara/internal/db"
	internalhttp "github.com/jorgepsendziuk/pinovara/internal/http"
	"github.com/jorgepsendziuk/pinovara/internal/metrics"
	"github.com/jorgepsendziuk/pinovara/internal/odk"
	"github.com/jorgepsendziuk/pinovara/internal/odksync"
	"github.com/jorgepsendziuk/pinovara/internal/organizacao"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/service"
	"github.com/jorgepsendziuk/pinovara/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	blobs, err := newStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	m := metrics.New()
	repository := repo.New(pool)
	sessions := auth.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	authService := service.NewAuthService(repository, redisClient, sessions, cfg.RefreshTTL)
	userService := service.NewUserService(repository)

	orgRepo := organizacao.NewRepository(pool)
	orgService := organizacao.NewService(orgRepo)
	anexos := anexo.NewRepository(pool, blobs)

	checks := map[string]internalhttp.Check{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	// remote fica nil quando o ODK não está configurado; o engine responde ErrRemoteUnavailable.
	var remote odksync.Remote
	if cfg.ODK.Enabled() {
		client, err := odk.Open(cfg.ODK.DSN, cfg.ODK.Schema, cfg.ODK.Prefixes, log.Logger)
		if err != nil {
			return fmt.Errorf("odk: %w", err)
		}
		defer client.Close()
		remote = client
		checks["odk"] = client.Ping
	} else {
		log.Warn().Msg("ODK_DB_DSN não definido; sincronização de anexos desativada")
	}

	engine := odksync.NewEngine(remote, anexos, orgRepo, odksync.NewRedisLocker(redisClient), m, log.Logger, odksync.Options{
		Concurrency: cfg.Sync.Concurrency,
		LockTTL:     cfg.Sync.LockTTL,
	})

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, m, log.Logger)
	defer recorder.Close()

	var scheduler *odksync.Scheduler
	if cfg.Sync.SchedulerEnabled && remote != nil {
		scheduler = odksync.NewScheduler(engine, cfg.Sync.Interval, log.Logger)
		scheduler.Start(ctx)
	}

	handler := internalhttp.NewRouter(cfg, internalhttp.Dependencies{
		Sessions:      sessions,
		Auth:          authService,
		Organizations: orgService,
		Attachments:   anexos,
		Sync:          engine,
		Users:         userService,
		AuditLogs:     auditRepo,
		Audit:         recorder,
		Metrics:       m,
		Checks:        checks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupLogger aplica LOG_LEVEL e LOG_FORMAT; com LOG_FILE também grava JSON rotacionado.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var file io.Writer
	if cfg.LogFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}
	log.Logger = zerolog.New(logOutput(cfg.LogFormat, os.Stdout, file)).With().Timestamp().Logger()
}

// logOutput usa ConsoleWriter só no formato console; o arquivo recebe sempre JSON.
func logOutput(format string, stdout, file io.Writer) io.Writer {
	out := stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}
	if file != nil {
		return zerolog.MultiLevelWriter(out, file)
	}
	return out
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "s3":
		return storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return storage.NewLocalStore(cfg.Dir)
	}
}

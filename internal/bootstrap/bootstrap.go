package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	httpadapter "github.com/kirillkom/notarization-api/internal/adapters/http"
	"github.com/kirillkom/notarization-api/internal/config"
	"github.com/kirillkom/notarization-api/internal/core/ports"
	"github.com/kirillkom/notarization-api/internal/core/usecase"
	"github.com/kirillkom/notarization-api/internal/infrastructure/auth/jwt"
	"github.com/kirillkom/notarization-api/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/notarization-api/internal/infrastructure/mail/smtp"
	"github.com/kirillkom/notarization-api/internal/infrastructure/queue/nats"
	"github.com/kirillkom/notarization-api/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/notarization-api/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/notarization-api/internal/infrastructure/resilience"
	"github.com/kirillkom/notarization-api/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/notarization-api/internal/infrastructure/storage/s3"
	"github.com/kirillkom/notarization-api/internal/observability/metrics"
)

// API is the wired HTTP side: repositories, usecases and the router.
type API struct {
	Config  config.Config
	Handler http.Handler

	closeFn func()
}

func NewAPI(ctx context.Context, cfg config.Config, logger *slog.Logger, httpMetrics *metrics.HTTPServerMetrics) (*API, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(httpMetrics),
	)

	verifier, err := jwt.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	storage, files, err := newBlobStorage(ctx, cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	queue, err := newQueue(cfg, logger, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init notification queue: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	sessions := postgres.NewSessionRepository(db)
	approvals := postgres.NewApprovalRepository(db)

	uploader := usecase.NewFileUploader(storage, pdf.NewInspector(cfg.UploadMaxPDFPages))
	notifier := usecase.NewNotifier(queue)
	notarizationUC := usecase.NewNotarizationUseCase(docs, approvals, uploader, notifier, xlsx.NewExporter())
	sessionUC := usecase.NewSessionUseCase(sessions, uploader, notifier, cfg.Location())
	signatureUC := usecase.NewSignatureUseCase(docs, sessions, approvals, uploader, notarizationUC, notifier)

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Auth:         usecase.NewAuthorizeUseCase(verifier),
		Notarization: notarizationUC,
		Signatures:   signatureUC,
		Sessions:     sessionUC,
		Files:        files,
		Metrics:      httpMetrics,
	})

	return &API{
		Config:  cfg,
		Handler: router.Handler(),
		closeFn: closeAll(queue, db),
	}, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker consumes email events and hands them to the SMTP relay.
type Worker struct {
	Config config.Config
	Queue  ports.NotificationQueue
	Mailer ports.Mailer

	closeFn func()
}

func NewWorker(cfg config.Config, logger *slog.Logger, workerMetrics *metrics.WorkerMetrics) (*Worker, error) {
	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(workerMetrics),
	)

	mailer, err := smtp.New(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	queue, err := newQueue(cfg, logger, executor)
	if err != nil {
		return nil, fmt.Errorf("init notification queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Queue:   queue,
		Mailer:  mailer,
		closeFn: closeAll(queue, nil),
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig().WithRetry(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff)
	rc.BreakerEnabled = cfg.BreakerEnabled
	return rc
}

func newQueue(cfg config.Config, logger *slog.Logger, executor *resilience.Executor) (*nats.Queue, error) {
	return nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
}

// newBlobStorage picks the configured backend. The returned handler is non-nil
// only for the local backend, which serves its own files.
func newBlobStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.BlobStorage, http.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", "local":
		storage, err := localfs.New(cfg.StoragePath, cfg.StoragePublicURL)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Handler(), nil
	case "s3":
		storage, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, executor)
		if err != nil {
			return nil, nil, err
		}
		return storage, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func closeAll(queue *nats.Queue, db *sql.DB) func() {
	return func() {
		queue.Close()
		if db != nil {
			_ = db.Close()
		}
	}
}

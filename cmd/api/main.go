package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/infra/database"
	"github.com/xavierca1/leadflow/internal/infra/http/handlers"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/queue"
	"github.com/xavierca1/leadflow/internal/infra/worker"
	"github.com/xavierca1/leadflow/internal/logger"
	"github.com/xavierca1/leadflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Database
	db, dialect, err := database.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer db.Close()

	leadRepo := database.NewLeadRepository(db, dialect)

	// 2. Events
	var publisher usecase.EventPublisher = usecase.NopPublisher{}
	var rabbitConn *amqp.Connection

	if cfg.AMQP.Enabled() {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.AMQP.URL)
		if err != nil {
			log.WithError(err).Fatal("connect rabbitmq")
		}
		defer rabbitMQ.Close()

		rabbitConn = rabbitMQ.Conn
		publisher = queue.NewProducer(rabbitMQ.Ch)

		consumerCh, err := rabbitMQ.Conn.Channel()
		if err != nil {
			log.WithError(err).Fatal("open consumer channel")
		}

		var notifiers queue.Notifiers
		if cfg.Mail.Enabled() {
			notifiers = append(notifiers, mail.NewEmailSender(
				cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.User, cfg.Mail.Password,
				cfg.Mail.From, cfg.Mail.NotifyTo,
			))
		}
		if cfg.WhatsApp.Enabled() {
			notifiers = append(notifiers, whatsapp.NewClient(
				cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneID,
				cfg.WhatsApp.NotifyTo, cfg.WhatsApp.Template,
			))
		}

		var notifier queue.Notifier
		if len(notifiers) > 0 {
			notifier = notifiers
		}

		eventWorker := queue.NewWorker(consumerCh, notifier, log.WithField("component", "lead-events"))
		go func() {
			if err := eventWorker.Start(ctx, queue.QueueName); err != nil {
				log.WithError(err).Error("lead event worker exited")
			}
		}()
	} else {
		log.Info("AMQP_URL not set, stage change events are dropped")
	}

	// 3. Service
	leadService := usecase.NewLeadService(leadRepo, middleware.InstrumentPublisher(publisher), log)
	if err := leadService.Init(ctx); err != nil {
		log.WithError(err).Fatal("initialize lead store")
	}

	// 4. Scheduled backups
	if cfg.Backup.Enabled() {
		if dialect != database.DialectSQLite {
			log.Warn("BACKUP_DIR ignored: backups need the sqlite driver")
		} else {
			backupWorker := worker.NewBackupWorker(leadRepo, cfg.Backup.Dir, cfg.Backup.Interval,
				cfg.Backup.Keep, log.WithField("component", "backup"))
			go backupWorker.Start(ctx)
		}
	}

	// 5. Handlers
	leadHandler := handlers.NewLeadHandler(leadService, log)
	healthHandler := handlers.NewHealthHandler(db, rabbitConn)

	// 6. Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.HTTP.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, time.Minute)))
		}
		leadHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("lead api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

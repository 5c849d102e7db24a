// main wires stores, services and handlers, and runs the HTTP server next
// to the audit worker. Business logic lives in the internal service
// packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quizdeck/internal/ai"
	"quizdeck/internal/audit"
	auditpg "quizdeck/internal/audit/store/postgres"
	authhandler "quizdeck/internal/auth/handler"
	authservice "quizdeck/internal/auth/service"
	userstore "quizdeck/internal/auth/store/user"
	"quizdeck/internal/auth/token"
	dochandler "quizdeck/internal/document/handler"
	docservice "quizdeck/internal/document/service"
	docstore "quizdeck/internal/document/store"
	guesthandler "quizdeck/internal/guest/handler"
	guestservice "quizdeck/internal/guest/service"
	gueststore "quizdeck/internal/guest/store"
	lessonhandler "quizdeck/internal/lesson/handler"
	lessonservice "quizdeck/internal/lesson/service"
	lessonstore "quizdeck/internal/lesson/store"
	"quizdeck/internal/platform/config"
	"quizdeck/internal/platform/httpserver"
	"quizdeck/internal/platform/logger"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/postgres"
	platformredis "quizdeck/internal/platform/redis"
	quotaservice "quizdeck/internal/quota/service"
	quotastore "quizdeck/internal/quota/store"
	subhandler "quizdeck/internal/subscription/handler"
	subservice "quizdeck/internal/subscription/service"
	substore "quizdeck/internal/subscription/store"
	httptransport "quizdeck/internal/transport/http"
)

const auditBuffer = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("open postgres failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	auditEvents := make(chan audit.Event, auditBuffer)
	auditPublisher := audit.NewChannelPublisher(auditEvents, log)
	auditWorker := audit.NewWorker(auditpg.New(db), auditEvents, log)

	jwtService := token.NewJWTService(
		cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTTL,
	)

	quotaSvc, err := quotaservice.New(quotastore.NewPostgresStore(db),
		quotaservice.WithLogger(log),
		quotaservice.WithMetrics(m),
		quotaservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		log.Error("build quota service failed", "error", err)
		os.Exit(1)
	}

	guestSvc, err := guestservice.New(gueststore.NewPostgresStore(db),
		guestservice.WithLogger(log),
		guestservice.WithMetrics(m),
		guestservice.WithAuditPublisher(auditPublisher),
		guestservice.WithDB(db),
	)
	if err != nil {
		log.Error("build guest service failed", "error", err)
		os.Exit(1)
	}

	userStore := userstore.NewPostgresStore(db)
	authSvc := authservice.New(userStore, jwtService,
		authservice.WithLogger(log),
		authservice.WithTransferrer(&guestTransferrer{guests: guestSvc}),
	)

	lessonSvc, err := lessonservice.New(lessonstore.NewPostgresStore(db),
		lessonservice.WithLogger(log),
		lessonservice.WithMetrics(m),
		lessonservice.WithAuditPublisher(auditPublisher),
		lessonservice.WithQuotaGate(quotaSvc),
		lessonservice.WithDB(db),
	)
	if err != nil {
		log.Error("build lesson service failed", "error", err)
		os.Exit(1)
	}

	generator := ai.NewOpenAIGenerator(cfg.OpenAI, log)
	docSvc, err := docservice.New(docstore.NewPostgresStore(db), generator, lessonSvc,
		docservice.WithLogger(log),
		docservice.WithMetrics(m),
		docservice.WithAuditPublisher(auditPublisher),
		docservice.WithCreationGate(quotaSvc),
		docservice.WithGuestGate(guestSvc),
		docservice.WithProfiles(authSvc),
		docservice.WithDB(db),
	)
	if err != nil {
		log.Error("build document service failed", "error", err)
		os.Exit(1)
	}

	subSvc, err := subservice.New(substore.NewPostgresStore(db), subservice.UnconfiguredProvider{},
		subservice.WithLogger(log),
		subservice.WithMetrics(m),
		subservice.WithAuditPublisher(auditPublisher),
		subservice.WithDB(db),
	)
	if err != nil {
		log.Error("build subscription service failed", "error", err)
		os.Exit(1)
	}

	docOpts := []dochandler.Option{}
	if redisClient != nil {
		// One upload per hour per origin for guests.
		docOpts = append(docOpts, dochandler.WithUploadLimiter(
			platformredis.NewFixedWindowLimiter(redisClient, "guest_upload", 1, time.Hour),
		))
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		DB:     db,
		Redis:  redisClient,
		Handlers: []httptransport.Registrar{
			authhandler.New(authSvc, log, m, jwtService),
			guesthandler.New(guestSvc, log, m, jwtService),
			dochandler.New(docSvc, guestSvc, log, m, jwtService, docOpts...),
			lessonhandler.New(lessonSvc, guestSvc, log, m, jwtService),
			subhandler.New(subSvc, quotaSvc, cfg.Stripe.WebhookSecret, log, m, jwtService),
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return auditWorker.Run(groupCtx)
	})
	group.Go(func() error {
		log.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

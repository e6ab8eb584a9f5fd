package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/inkpress/inkpress/internal/app"
	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/media"
	"github.com/inkpress/inkpress/internal/observability"
	"github.com/inkpress/inkpress/internal/platform/cache"
	"github.com/inkpress/inkpress/internal/platform/db"
	"github.com/inkpress/inkpress/internal/posts"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/roles"
	"github.com/inkpress/inkpress/internal/shared"
	"github.com/inkpress/inkpress/internal/users"
	"github.com/inkpress/inkpress/internal/view"
	"github.com/inkpress/inkpress/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("inkpress exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		return err
	}
	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	storage, err := app.NewStorage(ctx, cfg)
	if err != nil {
		return err
	}

	sessionManager := shared.NewSessionManager(redisClient, "inkpress_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo)
	authorizer := rbac.Authorizer{Observer: metrics}
	guard := rbac.Middleware{Loader: rbacService, Authorizer: authorizer, Logger: logger}

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)), templates, sessionManager, csrfManager)

	postService := posts.NewService(posts.Deps{
		Repo:        posts.NewRepository(dbpool),
		Storage:     storage,
		Purger:      jobClient,
		Authorizer:  authorizer,
		Auditor:     auditLogger,
		Slugifier:   posts.Slugifier{Lang: cfg.SlugLanguage()},
		Transitions: metrics,
		Logger:      logger,
		MaxUpload:   cfg.MaxUploadBytes,
	})
	postsHandler := posts.NewHandler(logger, postService, templates, csrfManager, guard, posts.Options{
		PerPage:   cfg.PostsPerPage,
		MaxUpload: cfg.MaxUploadBytes,
	})

	userService := users.NewService(users.NewRepository(dbpool), rbacService, authorizer, auditLogger, logger)
	usersHandler := users.NewHandler(logger, userService, templates, csrfManager, guard)

	rolesHandler := roles.NewHandler(logger, roles.NewService(rbacService), templates, csrfManager, guard)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, guard)

	params := app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     guard,
		AuthHandler:        authHandler,
		PostsHandler:       postsHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	}
	if local, ok := storage.(*media.LocalStorage); ok {
		params.Media = local
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

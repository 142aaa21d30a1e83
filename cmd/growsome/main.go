package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/growsome/growsome/cmd/growsome/cli"
	"github.com/growsome/growsome/internal/app"
	"github.com/growsome/growsome/internal/auth"
	"github.com/growsome/growsome/internal/observability"
	"github.com/growsome/growsome/internal/platform/cache"
	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
	"github.com/growsome/growsome/jobs"
)

const usage = `usage: growsome <command> [flags]

commands:
  serve            run the HTTP server (default)
  migrate          apply database migrations
  create-user      provision an account
  purge-sessions   enqueue an expired-session purge
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		cfg.LogWarnings(logger)
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrate(ctx, cfg, logger)
	case "create-user":
		return createUser(ctx, cfg, logger, args)
	case "purge-sessions":
		return purgeSessions(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*pgxpool.Pool, bool) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ConnectTimeout: cfg.PGConnectTimeout})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return nil, false
	}
	return pool, true
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	dbpool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer dbpool.Close()

	var sessions auth.SessionStore
	switch cfg.SessionStore {
	case "redis":
		redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DialTimeout: cfg.AuthStoreTimeout})
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		sessions = auth.NewRedisSessionStore(redisClient, cfg.AuthStoreTimeout)
	default:
		sessions = auth.NewPGSessionStore(dbpool, cfg.AuthStoreTimeout)
	}
	logger.Info("session store selected", slog.String("store", cfg.SessionStore))

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	codec := auth.NewTokenCodec(cfg.AuthSecret, nil)
	lifecycle := auth.NewLifecycle(codec, sessions, cfg.TokenTTL())
	resolver := auth.NewResolver(codec, sessions, usersRepo,
		auth.WithLookupTimeout(cfg.AuthStoreTimeout),
		auth.WithObserver(metrics),
	)
	authMiddleware := auth.Middleware{
		Resolver: resolver,
		Gate:     auth.NewGate(cfg.AuthSuperuserEmail),
		Cookies:  cfg.CookieConfig(),
		Logger:   logger,
	}
	authService := auth.NewService(usersRepo, codec, lifecycle, shared.NewAuditLogger(dbpool), logger)
	authHandler := auth.NewHandler(logger, authService, authMiddleware, cfg.RateLimitLogin)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		UsersHandler:   usersHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return 1
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied")
	return 0
}

func createUser(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	opts := cli.CreateUserOptions{}
	fs.StringVar(&opts.Email, "email", "", "account email (required)")
	fs.StringVar(&opts.Password, "password", "", "password; empty disables password login")
	fs.StringVar(&opts.Username, "username", "", "display name; defaults to the email local part")
	fs.StringVar(&opts.Role, "role", "user", "user or admin")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("GROWSOME_USER_PASSWORD")
	}

	pool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer pool.Close()
	return cli.NewUsersCLI(cli.NewPGProvisioner(pool)).CreateUserCommand(ctx, opts)
}

func purgeSessions(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("purge-sessions", flag.ContinueOnError)
	opts := cli.PurgeOptions{}
	fs.DurationVar(&opts.Grace, "grace", cfg.SessionPurgeGrace, "keep sessions that expired less than this long ago")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		return 1
	}
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	jobsCLI, err := cli.NewJobsCLI(client, inspector)
	if err != nil {
		logger.Error("jobs cli", slog.Any("error", err))
		return 1
	}
	return jobsCLI.PurgeCommand(ctx, opts)
}

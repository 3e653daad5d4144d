package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/metrics"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var bunDB *bun.DB
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		bunDB = openBunDB(cfg.Postgres.URL)
		defer bunDB.Close()
		if err := migrateDB(ctx, bunDB, logger); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	var tokens app.TokenStore
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		store = redisstore.NewSessionStore(redisClient, redisTTL, logger)
		tokens = redisstore.NewTokenStore(redisClient)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
		tokens = memory.NewTokenStore()
	}

	var passwords app.PasswordStore
	var transactions app.TransactionStore
	if pool != nil {
		passwords = pgstore.NewPasswordStore(pool)
		transactions = pgstore.NewTransactionStore(bunDB)
	} else {
		passwords = memory.NewPasswordStore()
		transactions = memory.NewTransactionStore()
	}

	gateOpts := []app.GateOption{
		app.WithTokenTTL(config.TTLDuration(cfg.Auth.SecondaryTTL, app.DefaultSecondaryTokenTTL)),
		app.WithGateLogger(logger),
	}
	if cfg.Auth.BcryptCost > 0 {
		gateOpts = append(gateOpts, app.WithBcryptCost(cfg.Auth.BcryptCost))
	}
	gate := app.NewSecondaryAuthGate(passwords, tokens, gateOpts...)

	points := app.NewPointAwardService(transactions, gate,
		app.WithPointsPerCorrect(cfg.Points.PerCorrect),
		app.WithPointsLogger(logger),
		app.WithPointsMetrics(m),
	)
	service := app.NewQuizService(store, quizRepo, points,
		app.WithSessionDeadline(config.TTLDuration(cfg.Session.Deadline, 0)),
		app.WithLogger(logger),
		app.WithMetrics(m),
	)

	router := transport.NewRouter(
		transport.NewWSHandler(service, logger),
		transport.NewAPIHandler(service, points, gate, logger),
		metrics.Handler(registry),
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuizzes serves a demo quiz when no database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{Prompt: "What is 2 + 2?", Answer: "4"},
				{Prompt: "What is the capital of France?", Answer: "Paris", Message: "Paris has been the capital since 987."},
				{Prompt: "Which planet is known as the red planet?", Answer: "Mars"},
			},
		},
	}
}

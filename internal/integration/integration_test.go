package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	pgstore "quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
)

type stack struct {
	service *app.QuizService
	points  *app.PointAwardService
	gate    *app.SecondaryAuthGate
}

func newStack(t *testing.T, ctx context.Context) stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := migrateDB(t, ctx, pgURL)
	t.Cleanup(func() { _ = db.Close() })

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	gate := app.NewSecondaryAuthGate(pgstore.NewPasswordStore(pool), infraredis.NewTokenStore(redisClient),
		app.WithBcryptCost(bcrypt.MinCost))
	points := app.NewPointAwardService(pgstore.NewTransactionStore(db), gate)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute, nil)
	return stack{
		service: app.NewQuizService(sessionStore, quizRepo, points),
		points:  points,
		gate:    gate,
	}
}

func TestSessionRewardsEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	if _, err := s.service.Join(ctx, "quiz-1", "A", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.service.Join(ctx, "quiz-1", "B", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.service.Start(ctx, "quiz-1", "A"); err != nil {
		t.Fatalf("start: %v", err)
	}

	answers := []string{"4", "Lyon", "mars"}
	for i, answer := range answers {
		if _, _, err := s.service.SubmitAnswer(ctx, "quiz-1", "A", domain.AnswerSubmission{QuestionNumber: i + 1, Answer: answer}); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
		if err := s.service.Advance(ctx, "quiz-1", "A"); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	lb, err := s.service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Phase != domain.PhaseFinished || lb.Entries[0].UserID != "A" || lb.Entries[0].Score != 2 || lb.Entries[1].Score != 0 {
		t.Fatalf("unexpected final leaderboard %+v", lb)
	}

	for i := 0; i < 3; i++ {
		rewards, err := s.service.Finalize(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if len(rewards) != 2 || rewards[0].Amount != 20 || rewards[1].Amount != 0 {
			t.Fatalf("unexpected rewards %+v", rewards)
		}
	}

	rewardsOnly, err := domain.NewPointHistoryQuery("REWARD", 0, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	history, err := s.points.History(ctx, "A", rewardsOnly)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one reward for A, got %+v", history)
	}
}

func TestSpendIsGuardedAndAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	if _, err := s.points.Finalize(ctx, domain.FinalStanding{
		SessionID: "s1",
		Standings: []domain.Standing{{UserID: "A", Score: 3}},
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := s.gate.SetPassword(ctx, "A", "pin-1234"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	tokens := make([]string, 6)
	for i := range tokens {
		token, err := s.gate.Issue(ctx, "A", "pin-1234")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens[i] = token.ID
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	// Two spenders per token: one token may back at most one spend, and the balance
	// covers only three spends.
	for _, token := range tokens {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				if _, err := s.points.Spend(ctx, "A", 10, token); err == nil {
					succeeded.Add(1)
				}
			}(token)
		}
	}
	wg.Wait()

	if succeeded.Load() != 3 {
		t.Fatalf("expected 3 successful spends, got %d", succeeded.Load())
	}
	balance, err := s.points.Balance(ctx, "A")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{Prompt: "What is 2 + 2?", Answer: "4"},
			{Prompt: "Capital of France?", Answer: "Paris"},
			{Prompt: "Which planet is red?", Answer: "Mars"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
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

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
	"flipiq-service/internal/infra/postgres"
	pgmigrations "flipiq-service/internal/infra/postgres/migrations"
	redisinfra "flipiq-service/internal/infra/redis"
)

// Spins up Postgres and Redis, hosts a session over the bun store, answers
// through the transactional scoring path, polls status through the Redis
// cache and the pgx reader.
func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	store := postgres.NewStore(db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	reader := postgres.NewPollReader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	sessions := app.NewSessionManager(store, nil)
	cache := redisinfra.NewStatusCache(redisClient, sessions, time.Minute)
	sessions.SetStatusCache(cache)
	tracker := app.NewParticipantTracker(store)
	scoring := app.NewScoringEngine(store)
	status := app.NewStatusService(store, reader)

	teacher := domain.User{Username: "tess", FirstName: "Tess", LastName: "Cher"}
	student := domain.User{Username: "sam", FirstName: "Sam", LastName: "Miller"}
	for _, u := range []*domain.User{&teacher, &student} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	catalog := app.NewDeckCatalog(store)
	deck, err := catalog.CreateDeck(ctx, teacher.ID, app.DeckInput{
		Title: "Warm-up",
		Cards: []app.CardInput{
			{Front: "What is 2 + 2?", Back: "4", Choices: []string{"3", "4", "5"}},
			{Front: "Capital of France?", Back: "Paris"},
		},
	})
	if err != nil {
		t.Fatalf("seed deck: %v", err)
	}

	session, err := sessions.StartSession(ctx, deck.ID, teacher.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := sessions.StartQuiz(ctx, deck.ID, teacher.ID); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	// Waiting-room poll goes through the cache; after the first hit the
	// flags are served from Redis.
	st, err := cache.CheckStatus(ctx, session.Code)
	if err != nil || !st.IsActive || !st.IsStarted {
		t.Fatalf("cached status: %+v, %v", st, err)
	}
	if _, err := cache.CheckStatus(ctx, session.Code); err != nil {
		t.Fatalf("second cached status: %v", err)
	}

	if _, err := tracker.JoinOrGet(ctx, session, student.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	out, err := scoring.RecordAnswer(ctx, deck.ID, session.ID, student.ID, deck.Cards[0].ID, " 4 ")
	if err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if !out.Correct || out.Progress != 1 || out.Score != 1 {
		t.Fatalf("unexpected outcome 1: %+v", out)
	}
	out, err = scoring.RecordAnswer(ctx, deck.ID, session.ID, student.ID, deck.Cards[1].ID, "london")
	if err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if out.Correct || out.Progress != 2 || out.Score != 1 {
		t.Fatalf("unexpected outcome 2: %+v", out)
	}

	// Host dashboard via the pgx poll reader.
	dash, err := status.Dashboard(ctx, deck.ID, teacher.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Code != session.Code || len(dash.Participants) != 1 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}
	if dash.Participants[0].Name != "Sam Miller" || dash.Participants[0].Progress != 2 {
		t.Fatalf("unexpected participant row: %+v", dash.Participants[0])
	}

	result, err := status.Result(ctx, deck.ID, session.ID, student.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Correct != 1 || result.Wrong != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Ending the session invalidates the cached status.
	if _, err := sessions.EndSession(ctx, deck.ID, teacher.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	st, err = cache.CheckStatus(ctx, session.Code)
	if err != nil {
		t.Fatalf("status after end: %v", err)
	}
	if st.IsActive {
		t.Fatalf("expected inactive after end, got %+v", st)
	}
}

func TestStartSessionDeactivatesPredecessorOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	store := postgres.NewStore(db)
	sessions := app.NewSessionManager(store, nil)

	teacher := domain.User{Username: "tess"}
	if err := store.CreateUser(ctx, &teacher); err != nil {
		t.Fatalf("user: %v", err)
	}
	catalog := app.NewDeckCatalog(store)
	deck, err := catalog.CreateDeck(ctx, teacher.ID, app.DeckInput{
		Title: "D",
		Cards: []app.CardInput{{Front: "f", Back: "b"}},
	})
	if err != nil {
		t.Fatalf("deck: %v", err)
	}

	first, err := sessions.StartSession(ctx, deck.ID, teacher.ID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := sessions.StartSession(ctx, deck.ID, teacher.ID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Code == second.Code {
		t.Fatalf("codes must differ")
	}

	// The partial unique index allows exactly one active row per deck.
	var count int
	if err := db.NewSelect().Model((*domain.Session)(nil)).
		Where("deck_id = ? AND is_active", deck.ID).
		ColumnExpr("count(*)").Scan(ctx, &count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "flipiq", "POSTGRES_PASSWORD": "flipiqpass", "POSTGRES_DB": "flipiqdb"},
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
	dsn := fmt.Sprintf("postgres://flipiq:flipiqpass@%s:%s/flipiqdb?sslmode=disable", host, port.Port())
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

package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"flipiq-service/internal/app"
	"flipiq-service/internal/config"
	"flipiq-service/internal/domain"
	"flipiq-service/internal/infra/memory"
	"flipiq-service/internal/infra/postgres"
	redisinfra "flipiq-service/internal/infra/redis"
	transport "flipiq-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz service",
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

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store app.Store
	var reader app.StatusReader
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		reader = postgres.NewPollReader(pool)
	} else {
		mem := memory.NewStore()
		seedDemoData(ctx, mem)
		store = mem
		log.Printf("no postgres url configured, using in-memory store")
	}

	sessions := app.NewSessionManager(store, nil)
	var statusCache *redisinfra.StatusCache
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.StatusTTL, 2*time.Second)
		statusCache = redisinfra.NewStatusCache(client, sessions, ttl)
		sessions.SetStatusCache(statusCache)
	}

	catalog := app.NewDeckCatalog(store)
	tracker := app.NewParticipantTracker(store)
	scoring := app.NewScoringEngine(store)
	status := app.NewStatusService(store, reader)

	var checker transport.StatusChecker = sessions
	if statusCache != nil {
		checker = statusCache
	}
	api := transport.NewAPIHandler(catalog, sessions, tracker, scoring, status, checker)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting flipiq service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoData loads a teacher, a student and one small deck so the service
// is usable out of the box without a database.
func seedDemoData(ctx context.Context, store app.Store) {
	teacher := domain.User{Username: "teacher", FirstName: "Tess", LastName: "Cher"}
	student := domain.User{Username: "student", FirstName: "Sam", LastName: "Miller"}
	if err := store.CreateUser(ctx, &teacher); err != nil {
		log.Printf("seed teacher: %v", err)
		return
	}
	if err := store.CreateUser(ctx, &student); err != nil {
		log.Printf("seed student: %v", err)
		return
	}

	deck := domain.Deck{
		OwnerID:  teacher.ID,
		Title:    "Warm-up",
		Subject:  "General",
		Grade:    "5",
		Public:   true,
		Interval: 10,
	}
	if err := store.CreateDeck(ctx, &deck); err != nil {
		log.Printf("seed deck: %v", err)
		return
	}
	cards := []domain.Card{
		{DeckID: deck.ID, Position: 0, Front: "What is 2 + 2?", Back: "4", Choices: []string{"3", "4", "5"}},
		{DeckID: deck.ID, Position: 1, Front: "Capital of France?", Back: "Paris", Choices: []string{"Paris", "London", "Rome"}},
	}
	for i := range cards {
		if err := store.AddCard(ctx, &cards[i]); err != nil {
			log.Printf("seed card: %v", err)
			return
		}
	}
	log.Printf("seeded demo deck %d (owner %d)", deck.ID, teacher.ID)
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clicker-quiz-service/internal/app"
	"clicker-quiz-service/internal/config"
	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/infra/bridge"
	"clicker-quiz-service/internal/infra/memory"
	"clicker-quiz-service/internal/infra/natsbus"
	pgstore "clicker-quiz-service/internal/infra/postgres"
	redisstore "clicker-quiz-service/internal/infra/redis"
	"clicker-quiz-service/internal/metrics"
	transport "clicker-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
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
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := paperLoader(cfg, pool)
	if err != nil {
		return err
	}

	paperTTL := config.TTLDuration(cfg.Paper.TTL, 10*time.Minute)
	var papers app.PaperRepository
	if redisClient != nil {
		papers = redisstore.NewPaperRepository(redisClient, loader, paperTTL)
	} else {
		papers = memory.NewPaperRepository(loader, paperTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	// Presses posted to this service land in the local feed; a remote bridge, when
	// configured, replaces it as the poll source.
	var feed transport.KeyEventRecorder
	if redisClient != nil {
		feed = redisstore.NewKeyEventFeed(redisClient)
	} else {
		feed = memory.NewKeyEventFeed()
	}
	var source app.KeyEventSource = feed
	if cfg.Bridge.URL != "" {
		source = bridge.NewEventClient(cfg.Bridge.URL, config.TTLDuration(cfg.Bridge.Timeout, 2*time.Second))
	}

	var submitter app.Submitter
	switch {
	case cfg.Submission.URL != "":
		submitter = bridge.NewSubmitClient(cfg.Submission.URL, config.TTLDuration(cfg.Submission.Timeout, 10*time.Second))
	case pool != nil:
		submitter = pgstore.NewResultStore(pool, papers)
	default:
		log.Warn().Msg("no submission target configured, ledgers are kept in memory only")
		submitter = memory.NewSubmissionLog()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	opts := []app.Option{
		app.WithMetrics(collector),
		app.WithRetention(config.TTLDuration(cfg.Session.Retention, app.DefaultRetention)),
	}
	if cfg.NATS.URL != "" {
		publisher, err := natsbus.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	service := app.NewSessionService(store, papers, source, submitter, opts...)

	mux := transport.NewRouter(
		transport.NewAPIHandler(service, feed),
		transport.NewWSHandler(service),
		collector.Instrument,
	)
	mux.Handle("GET /metrics", collector.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.WithCORS(mux, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting clicker quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	service.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

func paperLoader(cfg config.Config, pool *pgxpool.Pool) (memory.PaperLoader, error) {
	switch {
	case pool != nil:
		return pgstore.NewPaperLoader(pool), nil
	case cfg.Paper.File != "":
		papers, err := config.LoadPapers(cfg.Paper.File)
		if err != nil {
			return nil, err
		}
		log.Info().Int("papers", len(papers)).Str("file", cfg.Paper.File).Msg("loaded question papers")
		return memory.NewStaticPaperLoader(papers), nil
	default:
		return memory.NewStaticPaperLoader(samplePapers()), nil
	}
}

// samplePapers provides a minimal paper so the service runs without Postgres or a papers file.
func samplePapers() map[string]domain.Paper {
	return map[string]domain.Paper{
		"paper-1": {
			ID:   "paper-1",
			Name: "Sample paper",
			Questions: []domain.Question{
				{ID: 1, Prompt: "What is 2 + 2?", Options: [4]string{"3", "4", "5", "22"}, CorrectIndex: 1},
				{ID: 2, Prompt: "Which colour means stop?", Options: [4]string{"Green", "Amber", "Red", "Blue"}, CorrectIndex: 2},
				{ID: 3, Prompt: "How many options does a card have?", Options: [4]string{"2", "3", "4", "5"}, CorrectIndex: 2},
			},
		},
	}
}

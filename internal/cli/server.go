package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"temple-quiz-service/internal/app"
	"temple-quiz-service/internal/config"
	"temple-quiz-service/internal/domain"
	"temple-quiz-service/internal/events"
	"temple-quiz-service/internal/infra/memory"
	"temple-quiz-service/internal/infra/postgres"
	redisinfra "temple-quiz-service/internal/infra/redis"
	"temple-quiz-service/internal/logging"
	"temple-quiz-service/internal/metrics"
	transport "temple-quiz-service/internal/transport/http"
)

const defaultContentTimeout = 15 * time.Second

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

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	// exam source: content API, then the Postgres mirror, then the built-in demo exam
	var (
		loader    memory.ExamLoader
		submitter app.ResultSubmitter
	)
	switch {
	case cfg.Content.URL != "":
		client := newContentClient(cfg, logger)
		loader, submitter = client, client
	case pool != nil:
		loader = postgres.NewExamLoader(pool)
	default:
		loader = memory.NewStaticExamLoader(sampleExams())
	}
	if submitter == nil {
		logger.Warn("content api not configured; results are archived locally only")
	}

	examTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var exams app.ExamRepository
	if redisClient != nil {
		exams = redisinfra.NewExamRepository(redisClient, loader, examTTL, logger.Named("exam-cache"))
	} else {
		exams = memory.NewExamRepository(loader, examTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var results app.ResultStore
	if pool != nil {
		results = postgres.NewResultStore(pool)
	} else {
		results = memory.NewResultStore()
	}

	publisher, err := events.NewPublisher(events.Config{
		KafkaBrokers: cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
	}, logger.Named("events"))
	if err != nil {
		return err
	}
	defer publisher.Close()

	collectors := metrics.New()
	service := app.NewQuizService(sessions, exams, submitter, app.NewLeaderboardHub(results, nil),
		app.WithServiceLogger(logger.Named("quiz")),
		app.WithEvents(publisher),
		app.WithObserver(collectors),
		app.WithSessionOptions(
			app.WithTickInterval(config.TTLDuration(cfg.Quiz.TickInterval, time.Second)),
			app.WithSubmitTimeout(config.TTLDuration(cfg.Content.SubmitTimeout, 10*time.Second)),
		),
	)
	wsHandler := transport.NewWSHandler(service,
		transport.WithLogger(logger.Named("ws")),
		transport.WithConnectionObserver(collectors),
		transport.WithRateLimit(cfg.WebSocket.MessagesPerSecond, cfg.WebSocket.Burst),
	)

	mux := http.NewServeMux()
	mux.Handle("/healthz", collectors.Instrument("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})))
	mux.Handle("/metrics", collectors.Handler())
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
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

// sampleExams is served when neither the content API nor the Postgres mirror is configured.
func sampleExams() map[int]domain.Exam {
	return map[int]domain.Exam{
		1: {
			ID:               1,
			Title:            "Temple basics",
			TimeLimitMinutes: 5,
			Questions: []domain.Question{
				{
					ID:     1,
					Prompt: "How many days does the spring festival last?",
					Type:   domain.SingleChoice,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "9", Correct: true},
						{Text: "12"},
					},
					Correct: domain.SingleAnswer(1),
				},
				{
					ID:     2,
					Prompt: "Which of these are traditional offerings?",
					Type:   domain.MultipleChoice,
					Options: []domain.Option{
						{Text: "Flowers", Correct: true},
						{Text: "Incense", Correct: true},
						{Text: "Coins"},
					},
					Correct: domain.SetAnswer(0, 1),
				},
				{
					ID:     3,
					Prompt: "The evening prayer is held at sunset.",
					Type:   domain.TrueFalse,
					Options: []domain.Option{
						{Text: "True", Correct: true},
						{Text: "False"},
					},
					Correct: domain.SingleAnswer(0),
				},
			},
		},
	}
}

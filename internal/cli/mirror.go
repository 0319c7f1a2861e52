package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"temple-quiz-service/internal/config"
	"temple-quiz-service/internal/content"
	"temple-quiz-service/internal/domain"
	"temple-quiz-service/internal/infra/postgres"
	redisinfra "temple-quiz-service/internal/infra/redis"
)

// NewMirrorCmd copies exams from the content API into the Postgres exam mirror, so the
// service can run with the mirror as its exam source.
func NewMirrorCmd(configPath *string) *cobra.Command {
	var examIDs []int
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy exams from the content API into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Content.URL == "" || cfg.Postgres.URL == "" {
				return fmt.Errorf("mirror needs both content.url and postgres.url")
			}
			if len(examIDs) == 0 {
				return fmt.Errorf("pass at least one --exam")
			}

			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			mirror := postgres.NewExamLoader(pool)

			var cache examCache
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				cache = redisinfra.NewExamRepository(client, mirror,
					config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute), logger.Named("exam-cache"))
			}

			return mirrorExams(ctx, newContentClient(cfg, logger), mirror, cache, examIDs, logger)
		},
	}
	cmd.Flags().IntSliceVar(&examIDs, "exam", nil, "exam id to mirror (repeatable)")
	return cmd
}

type examSource interface {
	LoadExam(ctx context.Context, examID int) (domain.Exam, error)
}

type examSink interface {
	SaveExam(ctx context.Context, exam domain.Exam) error
}

// examCache is the shared exam cache running servers read through.
type examCache interface {
	Invalidate(ctx context.Context, examID int) error
}

// mirrorExams copies each exam from src to dst and drops any cached copy so servers
// pick up the new content on their next load. cache may be nil.
func mirrorExams(ctx context.Context, src examSource, dst examSink, cache examCache, examIDs []int, logger *zap.Logger) error {
	for _, id := range examIDs {
		exam, err := src.LoadExam(ctx, id)
		if err != nil {
			if content.IsStatus(err, http.StatusUnauthorized) || content.IsStatus(err, http.StatusForbidden) {
				return fmt.Errorf("content api rejected the configured token: %w", err)
			}
			return fmt.Errorf("load exam %d: %w", id, err)
		}
		if err := dst.SaveExam(ctx, exam); err != nil {
			return err
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, id); err != nil {
				logger.Warn("exam cache invalidation failed", zap.Int("exam_id", id), zap.Error(err))
			}
		}
		logger.Info("exam mirrored", zap.Int("exam_id", id), zap.Int("questions", len(exam.Questions)))
	}
	return nil
}

func newContentClient(cfg config.Config, logger *zap.Logger) *content.Client {
	return content.NewClient(cfg.Content.URL, cfg.Content.Token,
		content.WithLogger(logger.Named("content")),
		content.WithHTTPClient(newHTTPClient(config.TTLDuration(cfg.Content.Timeout, defaultContentTimeout))),
	)
}

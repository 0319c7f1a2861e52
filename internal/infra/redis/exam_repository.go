package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"temple-quiz-service/internal/domain"
)

// ExamLoader fetches exam content from a backing store (content API, Postgres mirror).
type ExamLoader interface {
	LoadExam(ctx context.Context, examID int) (domain.Exam, error)
}

// ExamRepository caches normalized exams in Redis and falls back to a loader on miss.
// Exams are stored as JSON: SET exam:{examID} <json> EX <ttl>
// Cache read/write errors degrade to loader calls; they never fail a request.
type ExamRepository struct {
	client *redis.Client
	loader ExamLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewExamRepository(client *redis.Client, loader ExamLoader, ttl time.Duration, logger *zap.Logger) *ExamRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID int) (domain.Exam, error) {
	if exam, ok := r.fromCache(ctx, examID); ok {
		return exam, nil
	}

	result, err, _ := r.sf.Do(strconv.Itoa(examID), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if exam, ok := r.fromCache(ctx, examID); ok {
			return exam, nil
		}

		exam, err := r.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 {
			data, err := json.Marshal(exam)
			if err == nil {
				err = r.client.Set(ctx, r.key(examID), data, ttl).Err()
			}
			if err != nil {
				r.logger.Warn("exam cache write failed", zap.Int("exam_id", examID), zap.Error(err))
			}
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

// Invalidate drops a cached exam.
func (r *ExamRepository) Invalidate(ctx context.Context, examID int) error {
	return r.client.Del(ctx, r.key(examID)).Err()
}

func (r *ExamRepository) fromCache(ctx context.Context, examID int) (domain.Exam, bool) {
	data, err := r.client.Get(ctx, r.key(examID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("exam cache read failed", zap.Int("exam_id", examID), zap.Error(err))
		}
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		r.logger.Warn("exam cache entry corrupt", zap.Int("exam_id", examID), zap.Error(err))
		return domain.Exam{}, false
	}
	return exam, true
}

func (r *ExamRepository) key(examID int) string {
	return "exam:" + strconv.Itoa(examID)
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

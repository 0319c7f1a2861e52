package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"temple-quiz-service/internal/domain"
)

// ExamLoader fetches exam content from a backing store (content API, Postgres mirror).
type ExamLoader interface {
	LoadExam(ctx context.Context, examID int) (domain.Exam, error)
}

// ExamRepository caches normalized exams with TTL to avoid repeated content API hits.
// Failed loads are not cached.
type ExamRepository struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[int]cachedExam
}

type cachedExam struct {
	exam      domain.Exam
	expiresAt time.Time
}

func NewExamRepository(loader ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedExam),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID int) (domain.Exam, error) {
	if exam, ok := r.cached(examID, r.clock()); ok {
		return exam, nil
	}

	result, err, _ := r.sf.Do(strconv.Itoa(examID), func() (interface{}, error) {
		now := r.clock()
		if exam, ok := r.cached(examID, now); ok {
			return exam, nil
		}

		exam, err := r.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 {
			r.mu.Lock()
			r.cache[examID] = cachedExam{exam: exam, expiresAt: now.Add(ttl)}
			r.mu.Unlock()
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (r *ExamRepository) cached(examID int, now time.Time) (domain.Exam, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[examID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Exam{}, false
	}
	return entry.exam, true
}

// StaticExamLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticExamLoader struct {
	exams map[int]domain.Exam
}

func NewStaticExamLoader(exams map[int]domain.Exam) *StaticExamLoader {
	return &StaticExamLoader{exams: exams}
}

func (l *StaticExamLoader) LoadExam(_ context.Context, examID int) (domain.Exam, error) {
	if exam, ok := l.exams[examID]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"temple-quiz-service/internal/domain"
)

// Leaderboard periods.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "alltime"
)

// ResultStore archives submitted results for the leaderboard.
type ResultStore interface {
	SaveResult(ctx context.Context, record domain.ResultRecord) error
	// ListResults returns results submitted at or after since.
	ListResults(ctx context.Context, since time.Time) ([]domain.ResultRecord, error)
}

// LeaderboardQuery selects the period and, optionally, a single exam.
type LeaderboardQuery struct {
	Period string `json:"period" validate:"omitempty,oneof=daily weekly monthly alltime"`
	ExamID int    `json:"examId" validate:"gte=0"`
}

func (q LeaderboardQuery) normalized() LeaderboardQuery {
	if q.Period == "" {
		q.Period = PeriodAllTime
	}
	return q
}

// PeriodStart returns the earliest submission time that counts for period.
func PeriodStart(period string, now time.Time) time.Time {
	switch period {
	case PeriodDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour)
	case PeriodMonthly:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return time.Time{}
	}
}

// RankResults aggregates results per user and orders them by total score, then by who
// reached it first, then by name.
func RankResults(results []domain.ResultRecord, q LeaderboardQuery, now time.Time) domain.Leaderboard {
	q = q.normalized()
	since := PeriodStart(q.Period, now)

	type aggregate struct {
		entry         domain.LeaderboardEntry
		accuracyTotal int
	}
	byUser := make(map[int]*aggregate)
	for _, r := range results {
		if r.SubmittedAt.Before(since) {
			continue
		}
		if q.ExamID != 0 && r.ExamID != q.ExamID {
			continue
		}
		agg, ok := byUser[r.UserID]
		if !ok {
			agg = &aggregate{entry: domain.LeaderboardEntry{UserID: r.UserID}}
			byUser[r.UserID] = agg
		}
		agg.entry.TotalScore += r.Marks
		agg.entry.QuizCount++
		agg.entry.TimeSpentSeconds += r.TimeSpentSeconds()
		agg.accuracyTotal += r.Accuracy()
		if r.SubmittedAt.After(agg.entry.LastSubmittedAt) {
			agg.entry.LastSubmittedAt = r.SubmittedAt
			agg.entry.DisplayName = r.DisplayName
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for _, agg := range byUser {
		e := agg.entry
		e.Accuracy = domain.RoundPercent(agg.accuracyTotal, 100*e.QuizCount)
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if !entries[i].LastSubmittedAt.Equal(entries[j].LastSubmittedAt) {
			return entries[i].LastSubmittedAt.Before(entries[j].LastSubmittedAt)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		Period:    q.Period,
		ExamID:    q.ExamID,
		Entries:   entries,
		UpdatedAt: now,
	}
}

// LeaderboardHub archives results and pushes fresh leaderboards to subscribers.
type LeaderboardHub struct {
	store ResultStore
	now   func() time.Time

	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]LeaderboardQuery
}

func NewLeaderboardHub(store ResultStore, now func() time.Time) *LeaderboardHub {
	if now == nil {
		now = time.Now
	}
	return &LeaderboardHub{
		store:       store,
		now:         now,
		subscribers: make(map[chan domain.Leaderboard]LeaderboardQuery),
	}
}

// Build computes the leaderboard for q from the archive.
func (h *LeaderboardHub) Build(ctx context.Context, q LeaderboardQuery) (domain.Leaderboard, error) {
	q = q.normalized()
	now := h.now()
	results, err := h.store.ListResults(ctx, PeriodStart(q.Period, now))
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list results: %w", err)
	}
	return RankResults(results, q, now), nil
}

// Record archives a result and notifies subscribers.
func (h *LeaderboardHub) Record(ctx context.Context, record domain.ResultRecord) error {
	if err := h.store.SaveResult(ctx, record); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	h.mu.Lock()
	queries := make(map[chan domain.Leaderboard]LeaderboardQuery, len(h.subscribers))
	for ch, q := range h.subscribers {
		queries[ch] = q
	}
	h.mu.Unlock()

	var errs []error
	for ch, q := range queries {
		lb, err := h.Build(ctx, q)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.deliver(ch, lb)
	}
	return errors.Join(errs...)
}

// Subscribe returns a channel receiving leaderboards for q, starting with the current
// one. The caller must invoke the returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(ctx context.Context, q LeaderboardQuery) (<-chan domain.Leaderboard, func(), error) {
	q = q.normalized()
	ch := make(chan domain.Leaderboard, 4)

	// registered before the first build so a concurrent Record is never missed
	h.mu.Lock()
	h.subscribers[ch] = q
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	initial, err := h.Build(ctx, q)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	h.mu.Lock()
	// a Record that landed during the build already queued a fresher board
	if len(ch) == 0 {
		ch <- initial
	}
	h.mu.Unlock()
	return ch, cancel, nil
}

func (h *LeaderboardHub) deliver(ch chan domain.Leaderboard, lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	select {
	case ch <- lb:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- lb
	}
}

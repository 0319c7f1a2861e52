package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"temple-quiz-service/internal/domain"
)

type fakeSubmitter struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	mu      sync.Mutex
	records []domain.ResultRecord
}

func (f *fakeSubmitter) SubmitResult(_ context.Context, _ domain.Principal, record domain.ResultRecord) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	return f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testExam(limitMinutes int) domain.Exam {
	return domain.Exam{
		ID:               7,
		Title:            "Temple history",
		TimeLimitMinutes: limitMinutes,
		Questions:        scoringQuestions()[:3],
	}
}

func startedSession(t *testing.T, submitter ResultSubmitter, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithTickInterval(time.Hour)}, opts...)
	s := NewSession("s-1", 7, domain.Principal{UserID: 42, DisplayName: "Asha"}, submitter, opts...)
	require.NoError(t, s.Load(testExam(1)))
	require.NoError(t, s.Begin(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestSessionLoadLifecycle(t *testing.T) {
	s := NewSession("s-1", 7, domain.Principal{UserID: 1}, nil, WithTickInterval(time.Hour))
	assert.Equal(t, domain.StatusLoading, s.Status())

	require.NoError(t, s.Load(testExam(0)))
	snap := s.Snapshot()
	assert.Equal(t, domain.StatusReady, snap.Status)
	assert.Equal(t, domain.DefaultTimeLimitMinutes*60, snap.RemainingSeconds)
	assert.Equal(t, 3, snap.QuestionCount)
	require.NotNil(t, snap.Question)
	assert.Equal(t, 1, snap.Question.ID)

	assert.ErrorIs(t, s.Select(1, 0), domain.ErrSessionNotActive)
	require.NoError(t, s.Begin(context.Background()))
	defer s.Close()
	assert.Equal(t, domain.StatusInProgress, s.Status())
}

func TestSessionEmptyExamFailsLoad(t *testing.T) {
	s := NewSession("s-1", 7, domain.Principal{UserID: 1}, nil)
	err := s.Load(domain.Exam{ID: 7})
	assert.ErrorIs(t, err, domain.ErrNoQuestions)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusLoadFailed, snap.Status)
	assert.NotEmpty(t, snap.LoadError)
	assert.Nil(t, snap.Question)
	assert.ErrorIs(t, s.Begin(context.Background()), domain.ErrSessionNotActive)
}

func TestSessionFailIsTerminal(t *testing.T) {
	s := NewSession("s-1", 7, domain.Principal{UserID: 1}, nil)
	s.Fail(domain.ErrExamLoadFailed)
	assert.Equal(t, domain.StatusLoadFailed, s.Status())
	assert.Error(t, s.Load(testExam(1)))
	assert.Equal(t, domain.StatusLoadFailed, s.Status())
}

func TestSessionNavigationClamps(t *testing.T) {
	s := startedSession(t, &fakeSubmitter{})

	idx, err := s.Previous()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, _ = s.Next()
	_, _ = s.Next()
	idx, _ = s.Next()
	assert.Equal(t, 2, idx)

	_, err = s.GoTo(3)
	assert.ErrorIs(t, err, domain.ErrQuestionIndexOutOfRange)
	_, err = s.GoTo(-1)
	assert.ErrorIs(t, err, domain.ErrQuestionIndexOutOfRange)
	assert.Equal(t, 2, s.Snapshot().CurrentIndex)

	idx, err = s.GoTo(1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, s.Snapshot().Question.ID)
}

func TestSessionTickCountsDownAndAutoSubmitsOnce(t *testing.T) {
	sub := &fakeSubmitter{}
	s := startedSession(t, sub)
	require.NoError(t, s.Select(1, 1))

	for i := 0; i < 59; i++ {
		s.Tick(context.Background())
	}
	assert.Equal(t, 1, s.Snapshot().RemainingSeconds)
	assert.Equal(t, int32(0), sub.calls.Load())

	assert.Equal(t, 0, s.Tick(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSubmitted, snap.Status)
	assert.Equal(t, domain.SubmitTimeout, snap.SubmitReason)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.CorrectCount)

	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, 0, s.Snapshot().RemainingSeconds)
}

func TestSessionCountdownRunsOnItsOwn(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession("s-1", 7, domain.Principal{UserID: 42}, sub, WithTickInterval(time.Millisecond))
	require.NoError(t, s.Load(testExam(1)))

	events, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Begin(context.Background()))
	defer s.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventSubmitted {
				continue
			}
			assert.Equal(t, domain.SubmitTimeout, ev.Snapshot.SubmitReason)
			assert.Equal(t, 0, ev.Snapshot.RemainingSeconds)
			assert.Equal(t, int32(1), sub.calls.Load())
			return
		case <-deadline:
			t.Fatalf("countdown never submitted, remaining=%d", s.Snapshot().RemainingSeconds)
		}
	}
}

func TestSessionConcurrentSubmitPostsOnce(t *testing.T) {
	sub := &fakeSubmitter{delay: 20 * time.Millisecond}
	s := startedSession(t, sub)
	for i := 0; i < 59; i++ {
		s.Tick(context.Background())
	}

	var (
		wg       sync.WaitGroup
		okCount  atomic.Int32
		dupCount atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), domain.SubmitManual)
			switch {
			case err == nil:
				okCount.Add(1)
			case errors.Is(err, domain.ErrAlreadySubmitted):
				dupCount.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			s.Tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), sub.calls.Load())
	assert.LessOrEqual(t, okCount.Load(), int32(1))
	assert.Equal(t, int32(16), okCount.Load()+dupCount.Load())
	assert.Equal(t, domain.StatusSubmitted, s.Status())
}

func TestSessionIgnoresMutationsAfterSubmit(t *testing.T) {
	s := startedSession(t, &fakeSubmitter{})
	require.NoError(t, s.Select(1, 1))
	_, err := s.Submit(context.Background(), domain.SubmitManual)
	require.NoError(t, err)

	before := s.Snapshot()
	assert.ErrorIs(t, s.Select(1, 0), domain.ErrAlreadySubmitted)
	_, err = s.Next()
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
	_, err = s.GoTo(2)
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
	s.Tick(context.Background())
	_, err = s.Submit(context.Background(), domain.SubmitTimeout)
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)

	assert.Equal(t, before, s.Snapshot())
}

func TestSessionRejectedSelectionLeavesState(t *testing.T) {
	s := startedSession(t, &fakeSubmitter{})
	before := s.Snapshot()

	assert.ErrorIs(t, s.Select(99, 0), domain.ErrQuestionNotFound)
	assert.ErrorIs(t, s.Select(1, 7), domain.ErrOptionOutOfRange)
	assert.Equal(t, before, s.Snapshot())
}

func TestSessionSubmitFailureStillSubmits(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("content api down")}
	var (
		hookRecord domain.ResultRecord
		hookErr    error
	)
	s := startedSession(t, sub, WithSubmittedHook(func(r domain.ResultRecord, err error) {
		hookRecord, hookErr = r, err
	}))

	result, err := s.Submit(context.Background(), domain.SubmitManual)
	assert.ErrorIs(t, err, domain.ErrSubmitFailed)
	assert.Equal(t, 3, result.TotalQuestions)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSubmitted, snap.Status)
	assert.Contains(t, snap.SubmitError, "content api down")
	require.NotNil(t, snap.Result)
	assert.ErrorIs(t, hookErr, domain.ErrSubmitFailed)
	assert.Equal(t, "s-1", hookRecord.SessionID)
}

func TestSessionTracksTimeSpentPerQuestion(t *testing.T) {
	clock := newFakeClock()
	sub := &fakeSubmitter{}
	s := startedSession(t, sub, WithClock(clock.Now))

	clock.Advance(5 * time.Second)
	_, _ = s.Next()
	clock.Advance(3 * time.Second)
	_, _ = s.Previous()
	clock.Advance(2 * time.Second)

	result, err := s.Submit(context.Background(), domain.SubmitManual)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Outcomes[0].TimeSpentSeconds)
	assert.Equal(t, 3, result.Outcomes[1].TimeSpentSeconds)
	assert.Equal(t, 0, result.Outcomes[2].TimeSpentSeconds)

	require.Len(t, sub.records, 1)
	record := sub.records[0]
	assert.Equal(t, 10, record.TimeSpentSeconds())
	assert.Equal(t, clock.Now(), record.SubmittedAt)
	assert.Equal(t, 42, record.UserID)
	assert.Equal(t, "Temple history", record.ExamTitle)
}

func TestSessionSubscribeReceivesUpdates(t *testing.T) {
	s := startedSession(t, &fakeSubmitter{})
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, EventSession, initial.Type)
	assert.Equal(t, domain.StatusInProgress, initial.Snapshot.Status)

	require.NoError(t, s.Select(2, 3))
	select {
	case ev := <-ch:
		require.Len(t, ev.Snapshot.Answers, 1)
		assert.Equal(t, []int{3}, ev.Snapshot.Answers[0].Selected.Indices())
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
	}
}

func TestSessionSnapshotHidesCorrectness(t *testing.T) {
	s := startedSession(t, &fakeSubmitter{})
	snap := s.Snapshot()
	require.NotNil(t, snap.Question)
	assert.Len(t, snap.Question.Options, 3)
	assert.Nil(t, snap.Result)
}

func TestSessionNonPositiveTickIntervalUsesOneSecond(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		s := NewSession("s-tick", 7, domain.Principal{UserID: 1, DisplayName: "Asha"}, nil, WithTickInterval(d))
		assert.Equal(t, time.Second, s.tickInterval)
	}
}

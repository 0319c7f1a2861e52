package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"temple-quiz-service/internal/app"
	"temple-quiz-service/internal/domain"
	"temple-quiz-service/internal/infra/memory"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	records []domain.ResultRecord
	tokens  []string
}

func (r *recordingSubmitter) SubmitResult(_ context.Context, p domain.Principal, record domain.ResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	r.tokens = append(r.tokens, p.Token)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ResultRecord
}

func (p *recordingPublisher) PublishResultSubmitted(_ context.Context, r domain.ResultRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, r)
	return nil
}

type countingObserver struct {
	mu        sync.Mutex
	started   int
	failed    int
	selected  int
	submitted int
}

func (o *countingObserver) SessionStarted(int)    { o.mu.Lock(); o.started++; o.mu.Unlock() }
func (o *countingObserver) SessionLoadFailed(int) { o.mu.Lock(); o.failed++; o.mu.Unlock() }
func (o *countingObserver) AnswerSelected()       { o.mu.Lock(); o.selected++; o.mu.Unlock() }
func (o *countingObserver) SessionSubmitted(domain.SubmitReason, int, error) {
	o.mu.Lock()
	o.submitted++
	o.mu.Unlock()
}

type harness struct {
	service   *app.QuizService
	sessions  *memory.SessionStore
	submitter *recordingSubmitter
	events    *recordingPublisher
	observer  *countingObserver
}

func newHarness() harness {
	exams := memory.NewExamRepository(memory.NewStaticExamLoader(map[int]domain.Exam{
		7: sampleExam(),
		8: {ID: 8, Title: "Empty"},
	}), time.Minute)
	h := harness{
		sessions:  memory.NewSessionStore(),
		submitter: &recordingSubmitter{},
		events:    &recordingPublisher{},
		observer:  &countingObserver{},
	}
	hub := app.NewLeaderboardHub(memory.NewResultStore(), nil)
	h.service = app.NewQuizService(h.sessions, exams, h.submitter, hub,
		app.WithEvents(h.events),
		app.WithObserver(h.observer),
		app.WithSessionOptions(app.WithTickInterval(time.Hour)),
	)
	return h
}

func TestQuizFlowSubmitsAndRanks(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	snap, err := h.service.Start(ctx, app.StartRequest{ExamID: 7, UserID: 42, DisplayName: "Asha", Token: "jwt"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.service.Abandon(ctx, snap.SessionID)
	if snap.Status != domain.StatusInProgress || snap.RemainingSeconds != 600 {
		t.Fatalf("unexpected start snapshot %+v", snap)
	}

	if _, err := h.service.Select(ctx, snap.SessionID, 1, 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap, err = h.service.Navigate(ctx, snap.SessionID, app.NavigateRequest{Action: app.NavigateNext})
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if snap.CurrentIndex != 1 {
		t.Fatalf("expected index 1, got %d", snap.CurrentIndex)
	}
	_, _ = h.service.Select(ctx, snap.SessionID, 2, 0)
	_, _ = h.service.Select(ctx, snap.SessionID, 2, 2)

	snap, err = h.service.Submit(ctx, snap.SessionID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Status != domain.StatusSubmitted || snap.Result == nil || snap.Result.Percentage != 100 {
		t.Fatalf("unexpected submitted snapshot %+v", snap)
	}
	if snap.SubmitReason != domain.SubmitManual {
		t.Fatalf("expected manual reason, got %q", snap.SubmitReason)
	}

	if len(h.submitter.records) != 1 || h.submitter.tokens[0] != "jwt" {
		t.Fatalf("expected one POST with the participant token, got %d", len(h.submitter.records))
	}
	if len(h.events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(h.events.events))
	}
	if h.observer.started != 1 || h.observer.selected != 3 || h.observer.submitted != 1 {
		t.Fatalf("unexpected observer counts %+v", h.observer)
	}

	lb, err := h.service.Leaderboard(ctx, app.LeaderboardQuery{Period: app.PeriodDaily})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != 42 || lb.Entries[0].TotalScore != 100 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}

	if _, err := h.service.Submit(ctx, snap.SessionID); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if len(h.submitter.records) != 1 {
		t.Fatalf("second submit must not POST")
	}
}

func TestStartValidatesRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	if _, err := h.service.Start(ctx, app.StartRequest{ExamID: 0, UserID: 1, DisplayName: "Asha"}); !errors.Is(err, domain.ErrInvalidExamID) {
		t.Fatalf("expected ErrInvalidExamID, got %v", err)
	}
	if _, err := h.service.Start(ctx, app.StartRequest{ExamID: 7, UserID: 1}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("invalid requests must not create sessions")
	}
}

func TestStartLoadFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	snap, err := h.service.Start(ctx, app.StartRequest{ExamID: 99, UserID: 1, DisplayName: "Asha"})
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
	if snap.Status != domain.StatusLoadFailed || snap.LoadError == "" {
		t.Fatalf("expected LOAD_FAILED snapshot, got %+v", snap)
	}

	snap, err = h.service.Start(ctx, app.StartRequest{ExamID: 8, UserID: 1, DisplayName: "Asha"})
	if !errors.Is(err, domain.ErrNoQuestions) || snap.Status != domain.StatusLoadFailed {
		t.Fatalf("expected empty exam to fail load, got %v %s", err, snap.Status)
	}
	if _, err := h.service.Select(ctx, snap.SessionID, 1, 0); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
	if h.observer.failed != 2 {
		t.Fatalf("expected 2 load failures, got %d", h.observer.failed)
	}
}

func TestUnknownSessionAndInvalidNavigation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	if _, err := h.service.Snapshot(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := h.service.SubscribeSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	snap, err := h.service.Start(ctx, app.StartRequest{ExamID: 7, UserID: 1, DisplayName: "Asha"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.service.Abandon(ctx, snap.SessionID)

	if _, err := h.service.Navigate(ctx, snap.SessionID, app.NavigateRequest{Action: "jump"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := h.service.Navigate(ctx, snap.SessionID, app.NavigateRequest{Action: app.NavigateGoTo, Index: 5}); !errors.Is(err, domain.ErrQuestionIndexOutOfRange) {
		t.Fatalf("expected ErrQuestionIndexOutOfRange, got %v", err)
	}
	if _, err := h.service.Leaderboard(ctx, app.LeaderboardQuery{Period: "yearly"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSubscribeSessionReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	snap, err := h.service.Start(ctx, app.StartRequest{ExamID: 7, UserID: 1, DisplayName: "Asha"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.service.Abandon(ctx, snap.SessionID)

	ch, cancel, err := h.service.SubscribeSession(ctx, snap.SessionID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // initial snapshot

	if _, err := h.service.Select(ctx, snap.SessionID, 1, 0); err != nil {
		t.Fatalf("select: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Snapshot.Answered != 1 {
			t.Fatalf("expected one answered question, got %d", ev.Snapshot.Answered)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session update")
	}
}

func TestAbandonForgetsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	snap, err := h.service.Start(ctx, app.StartRequest{ExamID: 7, UserID: 1, DisplayName: "Asha"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.service.Abandon(ctx, snap.SessionID)

	if _, err := h.service.Snapshot(ctx, snap.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected abandoned session to be gone, got %v", err)
	}
	if len(h.submitter.records) != 0 {
		t.Fatalf("abandoning must not submit")
	}
}

func sampleExam() domain.Exam {
	return domain.Exam{
		ID:               7,
		Title:            "Temple history",
		TimeLimitMinutes: 10,
		Questions: []domain.Question{
			{
				ID:      1,
				Prompt:  "What is 2 + 2?",
				Type:    domain.SingleChoice,
				Options: []domain.Option{{Text: "3"}, {Text: "4", Correct: true}},
				Correct: domain.SingleAnswer(1),
			},
			{
				ID:      2,
				Prompt:  "Pick the even numbers",
				Type:    domain.MultipleChoice,
				Options: []domain.Option{{Text: "2", Correct: true}, {Text: "3"}, {Text: "4", Correct: true}},
				Correct: domain.SetAnswer(0, 2),
			},
		},
	}
}

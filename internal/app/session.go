package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"temple-quiz-service/internal/domain"
)

// ResultSubmitter posts a finished attempt to the content API.
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, principal domain.Principal, record domain.ResultRecord) error
}

// Session event types pushed to subscribers.
const (
	EventSession   = "session"
	EventTick      = "tick"
	EventSubmitted = "submitted"
)

// SessionEvent carries a snapshot taken when the session changed.
type SessionEvent struct {
	Type     string                 `json:"type"`
	Snapshot domain.SessionSnapshot `json:"snapshot"`
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithClock overrides the wall clock used for time-spent accounting and timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithTickInterval sets the countdown period; one second in production.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.tickInterval = d }
}

// WithSubmitTimeout bounds the result POST.
func WithSubmitTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.submitTimeout = d }
}

func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithSubmittedHook runs after the session reaches SUBMITTED, with the submit error if any.
func WithSubmittedHook(fn func(domain.ResultRecord, error)) SessionOption {
	return func(s *Session) { s.onSubmitted = fn }
}

// Session is one participant's attempt at one exam.
//
//	LOADING -> READY -> IN_PROGRESS -> SUBMITTING -> SUBMITTED
//	LOADING -> LOAD_FAILED
//
// SUBMITTED and LOAD_FAILED are terminal.
type Session struct {
	id        string
	examID    int
	principal domain.Principal
	submitter ResultSubmitter

	now           func() time.Time
	tickInterval  time.Duration
	submitTimeout time.Duration
	logger        *zap.Logger
	onSubmitted   func(domain.ResultRecord, error)

	mu          sync.Mutex
	status      domain.SessionStatus
	exam        domain.Exam
	tracker     *AnswerTracker
	current     int
	remaining   int
	visitStart  time.Time
	timeSpent   map[int]time.Duration
	loadErr     error
	result      *domain.ScoreResult
	reason      domain.SubmitReason
	submitErr   error
	stopTimer   context.CancelFunc
	timerDone   chan struct{}
	subscribers map[chan SessionEvent]struct{}
}

func NewSession(id string, examID int, principal domain.Principal, submitter ResultSubmitter, opts ...SessionOption) *Session {
	s := &Session{
		id:            id,
		examID:        examID,
		principal:     principal,
		submitter:     submitter,
		now:           time.Now,
		tickInterval:  time.Second,
		submitTimeout: 10 * time.Second,
		logger:        zap.NewNop(),
		status:        domain.StatusLoading,
		timeSpent:     make(map[int]time.Duration),
		subscribers:   make(map[chan SessionEvent]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tickInterval <= 0 {
		s.tickInterval = time.Second
	}
	s.logger = s.logger.With(zap.String("session_id", id), zap.Int("exam_id", examID), zap.Int("user_id", principal.UserID))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ExamID() int {
	return s.examID
}

func (s *Session) Principal() domain.Principal {
	return s.principal
}

// Load moves LOADING to READY with the exam's questions.
func (s *Session) Load(exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusLoading {
		return fmt.Errorf("load exam %d in %s: %w", exam.ID, s.status, domain.ErrSessionNotActive)
	}
	if len(exam.Questions) == 0 {
		s.failLocked(domain.ErrNoQuestions)
		return domain.ErrNoQuestions
	}

	limit := exam.TimeLimitMinutes
	if limit <= 0 {
		limit = domain.DefaultTimeLimitMinutes
	}
	s.exam = exam
	s.tracker = NewAnswerTracker(exam.Questions)
	s.remaining = limit * 60
	s.status = domain.StatusReady
	s.broadcastLocked(EventSession)
	return nil
}

// Fail moves LOADING to the terminal LOAD_FAILED state.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusLoading {
		return
	}
	s.failLocked(err)
}

func (s *Session) failLocked(err error) {
	s.status = domain.StatusLoadFailed
	s.loadErr = err
	s.broadcastLocked(EventSession)
}

// Begin moves READY to IN_PROGRESS and starts the countdown. The countdown stops when
// ctx is done, when the session submits or when Close is called.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusReady {
		return fmt.Errorf("begin in %s: %w", s.status, domain.ErrSessionNotActive)
	}
	s.status = domain.StatusInProgress
	s.visitStart = s.now()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stopTimer = cancel
	s.timerDone = done
	go func() {
		defer close(done)
		runCountdown(runCtx, s.tickInterval, func() bool {
			s.Tick(runCtx)
			return s.Status() == domain.StatusInProgress
		})
	}()

	s.broadcastLocked(EventSession)
	return nil
}

// Select records an answer for a question of the current exam.
func (s *Session) Select(questionID, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}
	if err := s.tracker.Select(questionID, optionIndex); err != nil {
		return err
	}
	s.broadcastLocked(EventSession)
	return nil
}

// Next advances to the following question; it stays put on the last one.
func (s *Session) Next() (int, error) {
	return s.move(func(cur, n int) int {
		if cur < n-1 {
			return cur + 1
		}
		return cur
	})
}

// Previous goes back one question; it stays put on the first one.
func (s *Session) Previous() (int, error) {
	return s.move(func(cur, _ int) int {
		if cur > 0 {
			return cur - 1
		}
		return cur
	})
}

// GoTo jumps to a question by position.
func (s *Session) GoTo(index int) (int, error) {
	s.mu.Lock()
	n := len(s.exam.Questions)
	s.mu.Unlock()
	if index < 0 || index >= n {
		return 0, fmt.Errorf("go to %d of %d: %w", index, n, domain.ErrQuestionIndexOutOfRange)
	}
	return s.move(func(int, int) int { return index })
}

func (s *Session) move(target func(cur, n int) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return s.current, err
	}
	next := target(s.current, len(s.exam.Questions))
	if next != s.current {
		s.accountVisitLocked()
		s.current = next
		s.broadcastLocked(EventSession)
	}
	return s.current, nil
}

// Tick decrements the countdown by one. Reaching zero submits the session once;
// ticks outside IN_PROGRESS and after zero change nothing.
func (s *Session) Tick(ctx context.Context) int {
	s.mu.Lock()
	if s.status != domain.StatusInProgress || s.remaining <= 0 {
		remaining := s.remaining
		s.mu.Unlock()
		return remaining
	}
	s.remaining--
	remaining := s.remaining
	s.broadcastLocked(EventTick)
	s.mu.Unlock()

	if remaining == 0 {
		if _, err := s.Submit(ctx, domain.SubmitTimeout); err != nil {
			s.logger.Warn("auto-submit finished with error", zap.Error(err))
		}
	}
	return remaining
}

// Submit scores the attempt and posts it once. A failed POST is returned wrapped in
// domain.ErrSubmitFailed but the session still ends SUBMITTED with its score.
func (s *Session) Submit(ctx context.Context, reason domain.SubmitReason) (domain.ScoreResult, error) {
	s.mu.Lock()
	switch s.status {
	case domain.StatusInProgress:
	case domain.StatusSubmitting, domain.StatusSubmitted:
		s.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrAlreadySubmitted
	default:
		status := s.status
		s.mu.Unlock()
		return domain.ScoreResult{}, fmt.Errorf("submit in %s: %w", status, domain.ErrSessionNotActive)
	}

	s.status = domain.StatusSubmitting
	s.reason = reason
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.accountVisitLocked()

	result := Score(s.exam.Questions, s.tracker.Answers())
	for i := range result.Outcomes {
		result.Outcomes[i].TimeSpentSeconds = int(math.Round(s.timeSpent[result.Outcomes[i].QuestionID].Seconds()))
	}
	s.result = &result
	record := domain.ResultRecord{
		SessionID:      s.id,
		ExamID:         s.examID,
		ExamTitle:      s.exam.Title,
		UserID:         s.principal.UserID,
		DisplayName:    s.principal.DisplayName,
		Marks:          result.Percentage,
		CorrectCount:   result.CorrectCount,
		TotalQuestions: result.TotalQuestions,
		Details:        result.Outcomes,
		Reason:         reason,
		SubmittedAt:    s.now(),
	}
	s.broadcastLocked(EventSession)
	s.mu.Unlock()

	var err error
	if s.submitter != nil {
		submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
		err = s.submitter.SubmitResult(submitCtx, s.principal, record)
		cancel()
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrSubmitFailed, err)
		s.logger.Error("result submission failed", zap.String("reason", string(reason)), zap.Error(err))
	} else {
		s.logger.Info("result submitted", zap.String("reason", string(reason)), zap.Int("marks", record.Marks))
	}

	s.mu.Lock()
	s.status = domain.StatusSubmitted
	s.submitErr = err
	s.broadcastLocked(EventSubmitted)
	s.mu.Unlock()

	if s.onSubmitted != nil {
		s.onSubmitted(record, err)
	}
	return result, err
}

// Close stops the countdown and waits for it to exit. It does not submit.
func (s *Session) Close() {
	s.mu.Lock()
	stop, done := s.stopTimer, s.timerDone
	s.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

// Status returns the current state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives session events, starting with the current
// state. The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- SessionEvent{Type: EventSession, Snapshot: s.snapshotLocked()}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) activeLocked() error {
	switch s.status {
	case domain.StatusInProgress:
		return nil
	case domain.StatusSubmitting, domain.StatusSubmitted:
		return domain.ErrAlreadySubmitted
	default:
		return fmt.Errorf("session %s is %s: %w", s.id, s.status, domain.ErrSessionNotActive)
	}
}

func (s *Session) accountVisitLocked() {
	if len(s.exam.Questions) == 0 {
		return
	}
	now := s.now()
	qid := s.exam.Questions[s.current].ID
	s.timeSpent[qid] += now.Sub(s.visitStart)
	s.visitStart = now
}

func (s *Session) broadcastLocked(eventType string) {
	event := SessionEvent{Type: eventType, Snapshot: s.snapshotLocked()}
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// drop the oldest queued event so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:        s.id,
		ExamID:           s.examID,
		ExamTitle:        s.exam.Title,
		Status:           s.status,
		CurrentIndex:     s.current,
		QuestionCount:    len(s.exam.Questions),
		RemainingSeconds: s.remaining,
		Answers:          []domain.AnswerRecord{},
		SubmitReason:     s.reason,
	}
	if s.loadErr != nil {
		snap.LoadError = s.loadErr.Error()
	}
	if s.tracker != nil {
		snap.Answers = s.tracker.Preview()
		snap.Answered = s.tracker.Answered()
	}
	if s.current < len(s.exam.Questions) && s.status != domain.StatusLoadFailed {
		view := questionView(s.exam.Questions[s.current])
		snap.Question = &view
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	if s.submitErr != nil {
		snap.SubmitError = s.submitErr.Error()
	}
	return snap
}

func questionView(q domain.Question) domain.QuestionView {
	options := make([]domain.OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		options = append(options, domain.OptionView{Text: o.Text, MediaURL: o.MediaURL})
	}
	return domain.QuestionView{
		ID:          q.ID,
		Prompt:      q.Prompt,
		Description: q.Description,
		Type:        q.Type,
		Options:     options,
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"temple-quiz-service/internal/domain"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// ExamRepository loads normalized exams (from cache/backing store).
type ExamRepository interface {
	GetExam(ctx context.Context, examID int) (domain.Exam, error)
}

// EventPublisher announces submitted results to downstream consumers.
type EventPublisher interface {
	PublishResultSubmitted(ctx context.Context, record domain.ResultRecord) error
}

// Observer receives lifecycle signals for metrics.
type Observer interface {
	SessionStarted(examID int)
	SessionLoadFailed(examID int)
	AnswerSelected()
	SessionSubmitted(reason domain.SubmitReason, marks int, err error)
}

type noopObserver struct{}

func (noopObserver) SessionStarted(int)                               {}
func (noopObserver) SessionLoadFailed(int)                            {}
func (noopObserver) AnswerSelected()                                  {}
func (noopObserver) SessionSubmitted(domain.SubmitReason, int, error) {}

// StartRequest identifies the exam and the participant starting it.
type StartRequest struct {
	ExamID      int    `validate:"gt=0"`
	UserID      int    `validate:"gt=0"`
	DisplayName string `validate:"required,max=120"`
	Token       string
}

// Navigation actions.
const (
	NavigateNext     = "next"
	NavigatePrevious = "previous"
	NavigateGoTo     = "goto"
)

// NavigateRequest moves the current question.
type NavigateRequest struct {
	Action string `json:"action" validate:"required,oneof=next previous goto"`
	Index  int    `json:"index" validate:"gte=0"`
}

// ServiceOption customizes a QuizService.
type ServiceOption func(*QuizService)

func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *QuizService) { s.logger = logger }
}

func WithEvents(publisher EventPublisher) ServiceOption {
	return func(s *QuizService) { s.events = publisher }
}

func WithObserver(observer Observer) ServiceOption {
	return func(s *QuizService) { s.observer = observer }
}

// WithSessionOptions applies opts to every session the service creates.
func WithSessionOptions(opts ...SessionOption) ServiceOption {
	return func(s *QuizService) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions    SessionRepository
	exams       ExamRepository
	submitter   ResultSubmitter
	leaderboard *LeaderboardHub
	events      EventPublisher
	observer    Observer
	logger      *zap.Logger
	validate    *validator.Validate
	sessionOpts []SessionOption
	newID       func() string
}

func NewQuizService(store SessionRepository, exams ExamRepository, submitter ResultSubmitter, leaderboard *LeaderboardHub, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions:    store,
		exams:       exams,
		submitter:   submitter,
		leaderboard: leaderboard,
		observer:    noopObserver{},
		logger:      zap.NewNop(),
		validate:    validator.New(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a session, loads its exam and begins the countdown. The countdown
// lives until ctx is done or the session is submitted or abandoned. A load failure
// leaves the session in LOAD_FAILED; retrying means calling Start again.
func (s *QuizService) Start(ctx context.Context, req StartRequest) (domain.SessionSnapshot, error) {
	if err := s.validateStart(req); err != nil {
		return domain.SessionSnapshot{}, err
	}

	principal := domain.Principal{UserID: req.UserID, DisplayName: req.DisplayName, Token: req.Token}
	opts := append([]SessionOption{
		WithLogger(s.logger),
		WithSubmittedHook(s.afterSubmit),
	}, s.sessionOpts...)
	session := NewSession(s.newID(), req.ExamID, principal, s.submitter, opts...)
	s.sessions.Put(session)

	exam, err := s.exams.GetExam(ctx, req.ExamID)
	if err == nil {
		err = session.Load(exam)
	} else {
		session.Fail(err)
	}
	if err != nil {
		s.observer.SessionLoadFailed(req.ExamID)
		s.logger.Warn("exam load failed",
			zap.String("session_id", session.ID()),
			zap.Int("exam_id", req.ExamID),
			zap.Error(err))
		return session.Snapshot(), err
	}

	if err := session.Begin(ctx); err != nil {
		return session.Snapshot(), err
	}
	s.observer.SessionStarted(req.ExamID)
	s.logger.Info("quiz session started",
		zap.String("session_id", session.ID()),
		zap.Int("exam_id", req.ExamID),
		zap.Int("user_id", req.UserID))
	return session.Snapshot(), nil
}

// Select records an answer.
func (s *QuizService) Select(_ context.Context, sessionID string, questionID, optionIndex int) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err := session.Select(questionID, optionIndex); err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) || errors.Is(err, domain.ErrOptionOutOfRange) {
			s.logger.Error("invalid selection", zap.String("session_id", sessionID), zap.Error(err))
		}
		return session.Snapshot(), err
	}
	s.observer.AnswerSelected()
	return session.Snapshot(), nil
}

// Navigate moves the session's current question.
func (s *QuizService) Navigate(_ context.Context, sessionID string, req NavigateRequest) (domain.SessionSnapshot, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}

	var err error
	switch req.Action {
	case NavigateNext:
		_, err = session.Next()
	case NavigatePrevious:
		_, err = session.Previous()
	case NavigateGoTo:
		_, err = session.GoTo(req.Index)
	}
	return session.Snapshot(), err
}

// Submit is the manual submission path. A failed POST still yields a SUBMITTED
// snapshot; the error wraps domain.ErrSubmitFailed.
func (s *QuizService) Submit(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	_, err := session.Submit(ctx, domain.SubmitManual)
	return session.Snapshot(), err
}

// Snapshot reads a session.
func (s *QuizService) Snapshot(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// SubscribeSession returns a channel of session events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) SubscribeSession(_ context.Context, sessionID string) (<-chan SessionEvent, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Abandon stops the session's countdown without submitting and forgets it.
func (s *QuizService) Abandon(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
	if status := session.Status(); status == domain.StatusInProgress || status == domain.StatusReady {
		s.logger.Info("quiz session abandoned", zap.String("session_id", sessionID))
	}
}

// Leaderboard builds the ranking for a period.
func (s *QuizService) Leaderboard(ctx context.Context, q LeaderboardQuery) (domain.Leaderboard, error) {
	if err := s.validate.Struct(q); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return s.leaderboard.Build(ctx, q)
}

// SubscribeLeaderboard returns a channel that receives leaderboard updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) SubscribeLeaderboard(ctx context.Context, q LeaderboardQuery) (<-chan domain.Leaderboard, func(), error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return s.leaderboard.Subscribe(ctx, q)
}

func (s *QuizService) validateStart(req StartRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.StructField() == "ExamID" {
				return fmt.Errorf("%w: %d", domain.ErrInvalidExamID, req.ExamID)
			}
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
}

// afterSubmit archives, announces and counts a finished attempt. It runs on the
// submitting goroutine once the session is SUBMITTED.
func (s *QuizService) afterSubmit(record domain.ResultRecord, submitErr error) {
	s.observer.SessionSubmitted(record.Reason, record.Marks, submitErr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.leaderboard != nil {
		if err := s.leaderboard.Record(ctx, record); err != nil {
			s.logger.Error("archive result failed", zap.String("session_id", record.SessionID), zap.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.PublishResultSubmitted(ctx, record); err != nil {
			s.logger.Error("publish result event failed", zap.String("session_id", record.SessionID), zap.Error(err))
		}
	}
}

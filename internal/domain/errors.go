package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrExamNotFound indicates the exam content could not be found.
	ErrExamNotFound = errors.New("exam not found")
	// ErrInvalidExamID is returned for exam identifiers that are not positive.
	ErrInvalidExamID = errors.New("exam id must be a positive integer")
	// ErrExamLoadFailed wraps network and shape failures while loading an exam.
	ErrExamLoadFailed = errors.New("failed to load exam")
	// ErrNoQuestions is returned when an exam has no questions to play.
	ErrNoQuestions = errors.New("exam has no questions")
	// ErrQuestionNotFound indicates a question ID that is not part of the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionOutOfRange indicates an option index outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrQuestionIndexOutOfRange is returned when navigating outside [0, questionCount).
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionNotActive is returned for answer or navigation calls outside IN_PROGRESS.
	ErrSessionNotActive = errors.New("quiz session is not in progress")
	// ErrAlreadySubmitted is returned when a second submission reaches a session.
	ErrAlreadySubmitted = errors.New("quiz session already submitted")
	// ErrSubmitFailed wraps failures posting a result to the content API.
	ErrSubmitFailed = errors.New("failed to submit result")
)

package domain

import "time"

// QuestionType is the content API's question type code.
type QuestionType string

const (
	SingleChoice   QuestionType = "SC"
	MultipleChoice QuestionType = "MCQ"
	TrueFalse      QuestionType = "TF"
	Matching       QuestionType = "MATCH"
	Subjective     QuestionType = "SUBJECTIVE"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, TrueFalse, Matching, Subjective:
		return true
	}
	return false
}

// Scored reports whether the engine grades answers of this type.
func (t QuestionType) Scored() bool {
	return t == SingleChoice || t == MultipleChoice || t == TrueFalse
}

// MultiSelect reports whether answers toggle membership in a set.
func (t QuestionType) MultiSelect() bool {
	return t == MultipleChoice
}

// Option represents a possible answer for a question.
type Option struct {
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	MediaID  string `json:"mediaId,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Question is a normalized, read-only exam item. Correct is derived from the options
// once at load time: a scalar for SC/TF, a set for MCQ.
type Question struct {
	ID          int          `json:"id"`
	Prompt      string       `json:"prompt"`
	Description string       `json:"description,omitempty"`
	Type        QuestionType `json:"type"`
	Options     []Option     `json:"options"`
	Correct     Answer       `json:"correct"`
	Explanation string       `json:"explanation,omitempty"`
}

// Exam is a timed collection of questions.
type Exam struct {
	ID               int        `json:"id"`
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	Questions        []Question `json:"questions"`
}

// DefaultTimeLimitMinutes applies when the content API has no time limit for an exam.
const DefaultTimeLimitMinutes = 30

// Principal is the authenticated participant a session is started for.
type Principal struct {
	UserID      int
	DisplayName string
	Token       string
}

// AnswerRecord is the participant's current response to one question.
type AnswerRecord struct {
	QuestionID int    `json:"questionId"`
	Selected   Answer `json:"selected"`
}

// QuestionOutcome is the per-question breakdown of a score.
type QuestionOutcome struct {
	QuestionID       int    `json:"questionId"`
	Prompt           string `json:"question"`
	Selected         Answer `json:"selectedAnswer"`
	Correct          Answer `json:"correctAnswer"`
	IsCorrect        bool   `json:"isCorrect"`
	TimeSpentSeconds int    `json:"timeSpent"`
}

// Rating is the banded verdict shown next to a score.
type Rating struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ScoreResult is computed once at submission and never mutated afterwards.
type ScoreResult struct {
	CorrectCount   int               `json:"correctCount"`
	TotalQuestions int               `json:"totalQuestions"`
	Percentage     int               `json:"percentage"`
	Rating         Rating            `json:"rating"`
	Outcomes       []QuestionOutcome `json:"outcomes"`
}

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	StatusLoading    SessionStatus = "LOADING"
	StatusReady      SessionStatus = "READY"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusSubmitting SessionStatus = "SUBMITTING"
	StatusSubmitted  SessionStatus = "SUBMITTED"
	StatusLoadFailed SessionStatus = "LOAD_FAILED"
)

// SubmitReason records which path triggered a submission.
type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

// OptionView is an option as shown to a participant.
type OptionView struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// QuestionView hides correctness information from participants.
type QuestionView struct {
	ID          int          `json:"id"`
	Prompt      string       `json:"prompt"`
	Description string       `json:"description,omitempty"`
	Type        QuestionType `json:"type"`
	Options     []OptionView `json:"options"`
}

// SessionSnapshot is a consistent read of a session taken under its lock.
type SessionSnapshot struct {
	SessionID        string         `json:"sessionId"`
	ExamID           int            `json:"examId"`
	ExamTitle        string         `json:"examTitle,omitempty"`
	Status           SessionStatus  `json:"status"`
	CurrentIndex     int            `json:"currentIndex"`
	QuestionCount    int            `json:"questionCount"`
	Question         *QuestionView  `json:"question,omitempty"`
	RemainingSeconds int            `json:"remainingSeconds"`
	Answers          []AnswerRecord `json:"answers"`
	Answered         int            `json:"answered"`
	Result           *ScoreResult   `json:"result,omitempty"`
	SubmitReason     SubmitReason   `json:"submitReason,omitempty"`
	SubmitError      string         `json:"submitError,omitempty"`
	LoadError        string         `json:"loadError,omitempty"`
}

// ResultRecord is a submitted attempt, posted to the content API and archived locally.
type ResultRecord struct {
	SessionID      string            `json:"sessionId"`
	ExamID         int               `json:"examId"`
	ExamTitle      string            `json:"examTitle"`
	UserID         int               `json:"userId"`
	DisplayName    string            `json:"displayName"`
	Marks          int               `json:"marks"`
	CorrectCount   int               `json:"correctCount"`
	TotalQuestions int               `json:"totalQuestions"`
	Details        []QuestionOutcome `json:"details"`
	Reason         SubmitReason      `json:"reason"`
	SubmittedAt    time.Time         `json:"submittedAt"`
}

// Accuracy is the rounded share of correct outcomes, 0 when there are none.
func (r ResultRecord) Accuracy() int {
	if len(r.Details) == 0 {
		return 0
	}
	correct := 0
	for _, d := range r.Details {
		if d.IsCorrect {
			correct++
		}
	}
	return RoundPercent(correct, len(r.Details))
}

// TimeSpentSeconds sums the per-question time spent.
func (r ResultRecord) TimeSpentSeconds() int {
	total := 0
	for _, d := range r.Details {
		total += d.TimeSpentSeconds
	}
	return total
}

// RoundPercent returns round(100*part/whole), or 0 when whole is 0.
func RoundPercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	// half-up on non-negative integers, matching Math.round
	return (200*part + whole) / (2 * whole)
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	UserID           int       `json:"userId"`
	DisplayName      string    `json:"displayName"`
	TotalScore       int       `json:"totalScore"`
	QuizCount        int       `json:"quizCount"`
	Accuracy         int       `json:"accuracy"`
	TimeSpentSeconds int       `json:"timeSpent"`
	LastSubmittedAt  time.Time `json:"lastSubmittedAt"`
}

// Leaderboard captures the ordered scoreboard for a period.
type Leaderboard struct {
	Period    string             `json:"period"`
	ExamID    int                `json:"examId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

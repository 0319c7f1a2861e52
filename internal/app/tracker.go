package app

import (
	"fmt"

	"temple-quiz-service/internal/domain"
)

// AnswerTracker holds the current selection per question. It is not safe for
// concurrent use; Session serializes access.
type AnswerTracker struct {
	questions []domain.Question
	index     map[int]int
	answers   map[int]domain.Answer
	preview   map[int]domain.AnswerRecord
}

func NewAnswerTracker(questions []domain.Question) *AnswerTracker {
	index := make(map[int]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	return &AnswerTracker{
		questions: questions,
		index:     index,
		answers:   make(map[int]domain.Answer),
		preview:   make(map[int]domain.AnswerRecord),
	}
}

// Select overwrites the selection for single-select questions and toggles
// membership for multi-select ones.
func (t *AnswerTracker) Select(questionID, optionIndex int) error {
	pos, ok := t.index[questionID]
	if !ok {
		return fmt.Errorf("select question %d: %w", questionID, domain.ErrQuestionNotFound)
	}
	q := t.questions[pos]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return fmt.Errorf("select question %d option %d: %w", questionID, optionIndex, domain.ErrOptionOutOfRange)
	}

	var next domain.Answer
	if q.Type.MultiSelect() {
		current, ok := t.answers[questionID]
		if !ok {
			current = domain.SetAnswer()
		}
		next = current.Toggle(optionIndex)
	} else {
		next = domain.SingleAnswer(optionIndex)
	}

	t.answers[questionID] = next
	t.preview[questionID] = domain.AnswerRecord{QuestionID: questionID, Selected: next}
	return nil
}

// Selection returns the current answer; false when the question was never touched.
func (t *AnswerTracker) Selection(questionID int) (domain.Answer, bool) {
	a, ok := t.answers[questionID]
	return a, ok
}

// Answers returns a copy of the answer map for scoring.
func (t *AnswerTracker) Answers() map[int]domain.Answer {
	out := make(map[int]domain.Answer, len(t.answers))
	for k, v := range t.answers {
		out[k] = v
	}
	return out
}

// Preview lists the touched questions in exam order.
func (t *AnswerTracker) Preview() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(t.preview))
	for _, q := range t.questions {
		if rec, ok := t.preview[q.ID]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Answered counts questions with a non-empty selection.
func (t *AnswerTracker) Answered() int {
	n := 0
	for _, a := range t.answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

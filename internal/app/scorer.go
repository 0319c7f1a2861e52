package app

import "temple-quiz-service/internal/domain"

// Score grades answers against the questions' correct answers. It is pure: callers
// guarantee it runs once per session. Unanswered and unscored questions count as
// incorrect and stay in the denominator.
func Score(questions []domain.Question, answers map[int]domain.Answer) domain.ScoreResult {
	outcomes := make([]domain.QuestionOutcome, 0, len(questions))
	correctCount := 0
	for _, q := range questions {
		selected, ok := answers[q.ID]
		if !ok {
			selected = emptyAnswerFor(q.Type)
		}
		isCorrect := isCorrectAnswer(q, selected)
		if isCorrect {
			correctCount++
		}
		outcomes = append(outcomes, domain.QuestionOutcome{
			QuestionID: q.ID,
			Prompt:     q.Prompt,
			Selected:   selected,
			Correct:    q.Correct,
			IsCorrect:  isCorrect,
		})
	}

	percentage := domain.RoundPercent(correctCount, len(questions))
	return domain.ScoreResult{
		CorrectCount:   correctCount,
		TotalQuestions: len(questions),
		Percentage:     percentage,
		Rating:         RatingFor(percentage),
		Outcomes:       outcomes,
	}
}

func isCorrectAnswer(q domain.Question, selected domain.Answer) bool {
	switch q.Type {
	case domain.SingleChoice, domain.TrueFalse:
		got, ok := selected.Index()
		want, wantOK := q.Correct.Index()
		return ok && wantOK && got == want
	case domain.MultipleChoice:
		return selected.Answered() && selected.IsSet() && q.Correct.IsSet() && selected.Equal(q.Correct)
	default:
		return false
	}
}

func emptyAnswerFor(t domain.QuestionType) domain.Answer {
	if t.MultiSelect() {
		return domain.SetAnswer()
	}
	return domain.NoAnswer()
}

// RatingFor bands a percentage the way the result screen labels it.
func RatingFor(percentage int) domain.Rating {
	switch {
	case percentage >= 80:
		return domain.Rating{Status: "success", Message: "Excellent!"}
	case percentage >= 60:
		return domain.Rating{Status: "info", Message: "Good Job!"}
	case percentage >= 40:
		return domain.Rating{Status: "warning", Message: "Not Bad!"}
	default:
		return domain.Rating{Status: "error", Message: "Keep Practicing!"}
	}
}

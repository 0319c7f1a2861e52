package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"temple-quiz-service/internal/domain"
)

// ResultStore archives submitted results in quiz_results. It backs the leaderboard.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("encode result details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_results
		   (session_id, exam_id, exam_title, user_id, display_name, marks, correct_count, total_questions, details, reason, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING`,
		record.SessionID, record.ExamID, record.ExamTitle, record.UserID, record.DisplayName,
		record.Marks, record.CorrectCount, record.TotalQuestions, details, string(record.Reason), record.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", record.SessionID, err)
	}
	return nil
}

func (s *ResultStore) ListResults(ctx context.Context, since time.Time) ([]domain.ResultRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, exam_id, exam_title, user_id, display_name, marks, correct_count, total_questions, details, reason, submitted_at
		 FROM quiz_results WHERE submitted_at >= $1 ORDER BY submitted_at`, since)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.ResultRecord
	for rows.Next() {
		var (
			r       domain.ResultRecord
			details []byte
			reason  string
		)
		if err := rows.Scan(&r.SessionID, &r.ExamID, &r.ExamTitle, &r.UserID, &r.DisplayName,
			&r.Marks, &r.CorrectCount, &r.TotalQuestions, &details, &reason, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return nil, fmt.Errorf("decode result details %s: %w", r.SessionID, err)
		}
		r.Reason = domain.SubmitReason(reason)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"temple-quiz-service/internal/domain"
)

// ExamLoader loads normalized exam JSONB from the local exam mirror.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) LoadExam(ctx context.Context, examID int) (domain.Exam, error) {
	if examID <= 0 {
		return domain.Exam{}, domain.ErrInvalidExamID
	}
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM exams WHERE id=$1`, examID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, fmt.Errorf("%w: exam %d", domain.ErrExamNotFound, examID)
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: query exam %d: %w", domain.ErrExamLoadFailed, examID, err)
	}
	var exam domain.Exam
	if err := json.Unmarshal(raw, &exam); err != nil {
		return domain.Exam{}, fmt.Errorf("%w: decode exam %d: %w", domain.ErrExamLoadFailed, examID, err)
	}
	if exam.ID == 0 {
		exam.ID = examID
	}
	return exam, nil
}

// SaveExam upserts an exam into the mirror.
func (l *ExamLoader) SaveExam(ctx context.Context, exam domain.Exam) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("encode exam %d: %w", exam.ID, err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO exams (id, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		exam.ID, data)
	if err != nil {
		return fmt.Errorf("save exam %d: %w", exam.ID, err)
	}
	return nil
}

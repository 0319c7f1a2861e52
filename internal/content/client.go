package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"temple-quiz-service/internal/domain"
)

const maxErrorBody = 2048

// Client talks to the headless content API. It loads exams and posts results.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadExam fetches an exam with its questions populated and normalizes it.
// Failures wrap domain.ErrExamLoadFailed; a missing exam also matches domain.ErrExamNotFound.
func (c *Client) LoadExam(ctx context.Context, examID int) (domain.Exam, error) {
	if examID <= 0 {
		return domain.Exam{}, domain.ErrInvalidExamID
	}

	endpoint := c.baseURL + "/exams/" + strconv.Itoa(examID) + "?" + url.Values{
		"populate[questions][populate]": {"*"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: %w", domain.ErrExamLoadFailed, err)
	}
	c.authorize(req, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: %w", domain.ErrExamLoadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Exam{}, fmt.Errorf("%w: %w: exam %d", domain.ErrExamLoadFailed, domain.ErrExamNotFound, examID)
	}
	if resp.StatusCode >= 300 {
		return domain.Exam{}, fmt.Errorf("%w: %w", domain.ErrExamLoadFailed, statusError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: read body: %w", domain.ErrExamLoadFailed, err)
	}
	exam, err := normalizeExam(examID, body)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("%w: %w", domain.ErrExamLoadFailed, err)
	}
	c.logger.Debug("exam loaded",
		zap.Int("exam_id", exam.ID),
		zap.Int("questions", len(exam.Questions)),
	)
	return exam, nil
}

type resultDetail struct {
	Question       string        `json:"question"`
	SelectedAnswer domain.Answer `json:"selectedAnswer"`
	CorrectAnswer  domain.Answer `json:"correctAnswer"`
	IsCorrect      bool          `json:"isCorrect"`
	TimeSpent      int           `json:"timeSpent"`
}

type resultPayload struct {
	Exam          int                     `json:"exam"`
	User          int                     `json:"user"`
	Name          string                  `json:"name"`
	Marks         int                     `json:"marks"`
	ResultDetails map[string]resultDetail `json:"result_details"`
}

// SubmitResult posts a scored attempt to /results on behalf of the principal.
func (c *Client) SubmitResult(ctx context.Context, principal domain.Principal, record domain.ResultRecord) error {
	payload := resultPayload{
		Exam:          record.ExamID,
		User:          principal.UserID,
		Name:          record.ExamTitle + " - Result",
		Marks:         record.Marks,
		ResultDetails: make(map[string]resultDetail, len(record.Details)),
	}
	for _, d := range record.Details {
		payload.ResultDetails[strconv.Itoa(d.QuestionID)] = resultDetail{
			Question:       d.Prompt,
			SelectedAnswer: d.Selected,
			CorrectAnswer:  d.Correct,
			IsCorrect:      d.IsCorrect,
			TimeSpent:      d.TimeSpentSeconds,
		}
	}

	body, err := json.Marshal(map[string]resultPayload{"data": payload})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req, principal.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("result posted",
		zap.String("session_id", record.SessionID),
		zap.Int("exam_id", record.ExamID),
		zap.Int("user_id", principal.UserID),
		zap.Int("marks", record.Marks),
	)
	return nil
}

func (c *Client) authorize(req *http.Request, token string) {
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// StatusError is returned for non-2xx responses from the content API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("content api: status %d", e.Code)
	}
	return fmt.Sprintf("content api: status %d: %s", e.Code, e.Body)
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

// IsStatus reports whether err carries the given content API status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

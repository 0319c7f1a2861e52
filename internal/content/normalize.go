package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"temple-quiz-service/internal/domain"
)

type examEnvelope struct {
	Data *examData `json:"data"`
}

type examData struct {
	ID         int            `json:"id"`
	Attributes examAttributes `json:"attributes"`
}

type examAttributes struct {
	Name      string `json:"name"`
	TimeLimit *int   `json:"time_limit"`
	Questions struct {
		Data []questionData `json:"data"`
	} `json:"questions"`
}

type questionData struct {
	ID         int                `json:"id"`
	Attributes questionAttributes `json:"attributes"`
}

type questionAttributes struct {
	Title            string          `json:"title"`
	TitleEn          string          `json:"title_en"`
	Description      string          `json:"description"`
	Type             string          `json:"quetype"`
	Explanation      string          `json:"explaination_description"`
	JSON             json.RawMessage `json:"json"`
	OptionMultimedia struct {
		Data []mediaData `json:"data"`
	} `json:"option_multimedia"`
}

type mediaData struct {
	ID         int `json:"id"`
	Attributes struct {
		URL string `json:"url"`
	} `json:"attributes"`
}

type rawOption struct {
	text    string
	correct bool
	mediaID string
}

// normalizeExam converts the content API envelope into a domain exam.
// Option order is preserved and correct indices are derived once here.
func normalizeExam(examID int, body []byte) (domain.Exam, error) {
	var env examEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Exam{}, fmt.Errorf("decode exam envelope: %w", err)
	}
	if env.Data == nil {
		return domain.Exam{}, domain.ErrExamNotFound
	}

	attrs := env.Data.Attributes
	exam := domain.Exam{
		ID:               env.Data.ID,
		Title:            attrs.Name,
		TimeLimitMinutes: domain.DefaultTimeLimitMinutes,
	}
	if exam.ID == 0 {
		exam.ID = examID
	}
	if attrs.TimeLimit != nil && *attrs.TimeLimit > 0 {
		exam.TimeLimitMinutes = *attrs.TimeLimit
	}

	for _, qd := range attrs.Questions.Data {
		q, err := normalizeQuestion(qd)
		if err != nil {
			return domain.Exam{}, fmt.Errorf("question %d: %w", qd.ID, err)
		}
		exam.Questions = append(exam.Questions, q)
	}
	return exam, nil
}

func normalizeQuestion(qd questionData) (domain.Question, error) {
	attrs := qd.Attributes
	qType := domain.QuestionType(strings.ToUpper(strings.TrimSpace(attrs.Type)))
	if !qType.Valid() {
		return domain.Question{}, fmt.Errorf("unknown question type %q", attrs.Type)
	}

	media := make(map[string]string, len(attrs.OptionMultimedia.Data))
	for _, m := range attrs.OptionMultimedia.Data {
		media[strconv.Itoa(m.ID)] = m.Attributes.URL
	}

	raws, err := decodeOptions(attrs.JSON)
	if err != nil {
		return domain.Question{}, err
	}

	options := make([]domain.Option, 0, len(raws))
	var correct []int
	for i, ro := range raws {
		options = append(options, domain.Option{
			Text:     ro.text,
			Correct:  ro.correct,
			MediaID:  ro.mediaID,
			MediaURL: media[ro.mediaID],
		})
		if ro.correct {
			correct = append(correct, i)
		}
	}

	prompt := attrs.Title
	if prompt == "" {
		prompt = attrs.TitleEn
	}

	q := domain.Question{
		ID:          qd.ID,
		Prompt:      prompt,
		Description: attrs.Description,
		Type:        qType,
		Options:     options,
		Explanation: attrs.Explanation,
	}
	switch {
	case qType.MultiSelect() || !qType.Scored():
		q.Correct = domain.SetAnswer(correct...)
	case len(correct) > 0:
		q.Correct = domain.SingleAnswer(correct[0])
	default:
		q.Correct = domain.NoAnswer()
	}
	return q, nil
}

// decodeOptions accepts {"options":[...]} or a bare array.
func decodeOptions(raw json.RawMessage) ([]rawOption, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var list []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	} else {
		var wrapper struct {
			Options []json.RawMessage `json:"options"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		list = wrapper.Options
	}

	out := make([]rawOption, 0, len(list))
	for i, item := range list {
		opt, err := decodeOption(item)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		out = append(out, opt)
	}
	return out, nil
}

// decodeOption walks the object in key order; the text is the first key that is not
// a correctness flag or a media reference.
func decodeOption(raw json.RawMessage) (rawOption, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return rawOption{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return rawOption{}, fmt.Errorf("expected object, got %v", tok)
	}

	var opt rawOption
	textSet := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return rawOption{}, err
		}
		key, _ := keyTok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return rawOption{}, err
		}
		switch strings.ToLower(key) {
		case "iscorrect":
			opt.correct = truthy(val)
		case "multimediaid":
			opt.mediaID = scalarString(val)
		default:
			if !textSet {
				opt.text = scalarString(val)
				textSet = true
			}
		}
	}
	return opt, nil
}

func truthy(val json.RawMessage) bool {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(val)), `"`)) {
	case "true", "1":
		return true
	}
	return false
}

func scalarString(val json.RawMessage) string {
	val = bytes.TrimSpace(val)
	if bytes.Equal(val, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		return s
	}
	return string(val)
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"temple-quiz-service/internal/app"
	"temple-quiz-service/internal/domain"
)

// ConnectionObserver is told about socket lifecycle and throttled messages.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageRateLimited()
}

type noopConnections struct{}

func (noopConnections) ConnectionOpened()   {}
func (noopConnections) ConnectionClosed()   {}
func (noopConnections) MessageRateLimited() {}

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   *zap.Logger
	observer ConnectionObserver
	limit    rate.Limit
	burst    int
}

type Option func(*WSHandler)

func WithLogger(logger *zap.Logger) Option {
	return func(h *WSHandler) { h.logger = logger }
}

func WithConnectionObserver(observer ConnectionObserver) Option {
	return func(h *WSHandler) { h.observer = observer }
}

// WithRateLimit caps inbound messages per connection.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *WSHandler) {
		h.limit = rate.Limit(perSecond)
		h.burst = burst
	}
}

func NewWSHandler(service *app.QuizService, opts ...Option) *WSHandler {
	h := &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   zap.NewNop(),
		observer: noopConnections{},
		limit:    rate.Limit(10),
		burst:    20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Inbound message types.
const (
	msgSelect      = "select"
	msgNavigate    = "navigate"
	msgSubmit      = "submit"
	msgLeaderboard = "leaderboard"
	msgError       = "error"
)

const maxMessageBytes = 8 << 10

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID  int `json:"questionId"`
	OptionIndex int `json:"optionIndex"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz session per
// connection. Closing the socket abandons an unsubmitted session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	req, err := startRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	h.observer.ConnectionOpened()
	defer h.observer.ConnectionClosed()

	ctx := r.Context()
	snap, err := h.service.Start(ctx, req)
	if snap.SessionID != "" {
		defer h.service.Abandon(ctx, snap.SessionID)
	}
	if err != nil {
		if snap.SessionID != "" {
			_ = conn.WriteJSON(outboundMessage{Type: app.EventSession, Payload: snap})
		}
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	sessionID := snap.SessionID
	logger := h.logger.With(zap.String("session_id", sessionID))

	events, cancelEvents, err := h.service.SubscribeSession(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage, 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var forwarders sync.WaitGroup

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("ws write error", zap.Error(err))
				// keep draining so producers never block on a dead socket
				for range send {
				}
				return
			}
		}
	}()

	forwarders.Add(1)
	go func() {
		defer forwarders.Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: ev.Type, Payload: ev.Snapshot}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	var cancelLeaderboard func()
	limiter := rate.NewLimiter(h.limit, h.burst)
	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			h.observer.MessageRateLimited()
			reply(outboundMessage{Type: msgError, Payload: errorPayload{Code: "rate_limited", Message: "too many messages"}})
			continue
		}

		switch inbound.Type {
		case msgSelect:
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(invalidPayload(msgSelect))
				continue
			}
			if _, err := h.service.Select(ctx, sessionID, payload.QuestionID, payload.OptionIndex); err != nil {
				reply(errorMessage(err))
			}
		case msgNavigate:
			var payload app.NavigateRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(invalidPayload(msgNavigate))
				continue
			}
			if _, err := h.service.Navigate(ctx, sessionID, payload); err != nil {
				reply(errorMessage(err))
			}
		case msgSubmit:
			if _, err := h.service.Submit(ctx, sessionID); err != nil {
				reply(errorMessage(err))
			}
		case msgLeaderboard:
			var query app.LeaderboardQuery
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &query); err != nil {
					reply(invalidPayload(msgLeaderboard))
					continue
				}
			}
			updates, cancel, err := h.service.SubscribeLeaderboard(ctx, query)
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			if cancelLeaderboard != nil {
				cancelLeaderboard()
			}
			cancelLeaderboard = cancel
			forwarders.Add(1)
			go func() {
				defer forwarders.Done()
				for {
					select {
					case lb, ok := <-updates:
						if !ok {
							return
						}
						select {
						case send <- outboundMessage{Type: msgLeaderboard, Payload: lb}:
						case <-closeSignals:
							return
						}
					case <-closeSignals:
						return
					}
				}
			}()
		default:
			reply(outboundMessage{Type: msgError, Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	cancelEvents()
	if cancelLeaderboard != nil {
		cancelLeaderboard()
	}
	forwarders.Wait()
	close(send)
	<-writerDone
}

func startRequest(r *http.Request) (app.StartRequest, error) {
	q := r.URL.Query()
	examID, err := strconv.Atoi(q.Get("examId"))
	if err != nil {
		return app.StartRequest{}, errors.New("examId must be an integer")
	}
	userID, err := strconv.Atoi(q.Get("userId"))
	if err != nil {
		return app.StartRequest{}, errors.New("userId must be an integer")
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		return app.StartRequest{}, errors.New("missing name")
	}

	token := q.Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		if bearer, ok := strings.CutPrefix(auth, "Bearer "); ok {
			token = bearer
		}
	}
	return app.StartRequest{ExamID: examID, UserID: userID, DisplayName: name, Token: token}, nil
}

func invalidPayload(kind string) outboundMessage {
	return outboundMessage{Type: msgError, Payload: errorPayload{Code: "invalid_payload", Message: "invalid " + kind + " payload"}}
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: msgError, Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidExamID):
		return "invalid_exam_id"
	case errors.Is(err, domain.ErrExamNotFound):
		return "exam_not_found"
	case errors.Is(err, domain.ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, domain.ErrExamLoadFailed):
		return "load_failed"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "question_not_found"
	case errors.Is(err, domain.ErrOptionOutOfRange):
		return "option_out_of_range"
	case errors.Is(err, domain.ErrQuestionIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, domain.ErrSessionNotActive):
		return "not_in_progress"
	case errors.Is(err, domain.ErrSubmitFailed):
		return "submit_failed"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

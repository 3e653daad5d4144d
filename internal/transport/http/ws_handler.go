package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "ws")),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionNumber int    `json:"questionNumber"`
	Answer         string `json:"answer"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type answerResult struct {
	Result      domain.SubmissionResult `json:"result"`
	Leaderboard domain.Leaderboard      `json:"leaderboard"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: toHTTPError(err).apiError}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if quizID == "" || userID == "" || displayName == "" {
		writeError(w, newValidationError("missing quizId, userId, or name"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	joined, err := h.service.Join(ctx, quizID, userID, displayName)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	events, cancel, err := h.service.Subscribe(ctx, quizID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	// The subscription goes first so the session can be released once idle.
	defer func() {
		cancel()
		h.service.Leave(ctx, quizID, userID)
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer; gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", slog.Any("error", err))
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.handle(r, quizID, userID, inbound); ok {
			select {
			case send <- reply:
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// handle executes one inbound command and returns the direct reply, if any. State
// changes reach every participant, this one included, through the event stream.
func (h *WSHandler) handle(r *http.Request, quizID, userID string, inbound inboundMessage) (outboundMessage[any], bool) {
	ctx := r.Context()
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(newValidationError("invalid answer payload")), true
		}
		result, lb, err := h.service.SubmitAnswer(ctx, quizID, userID, domain.AnswerSubmission{
			QuestionNumber: payload.QuestionNumber,
			Answer:         payload.Answer,
		})
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{Result: result, Leaderboard: lb}}, true
	case "chat":
		var payload chatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(newValidationError("invalid chat payload")), true
		}
		if _, err := h.service.Chat(ctx, quizID, userID, payload.Message); err != nil {
			return errorMessage(err), true
		}
	case "start":
		if err := h.service.Start(ctx, quizID, userID); err != nil {
			return errorMessage(err), true
		}
	case "next":
		if err := h.service.Advance(ctx, quizID, userID); err != nil {
			h.logFailure(err)
			return errorMessage(err), true
		}
	case "finish":
		if err := h.service.Finish(ctx, quizID, userID); err != nil {
			h.logFailure(err)
			return errorMessage(err), true
		}
	default:
		return errorMessage(newValidationError("unsupported message type")), true
	}
	return outboundMessage[any]{}, false
}

func (h *WSHandler) logFailure(err error) {
	if toHTTPError(err).status >= http.StatusInternalServerError {
		h.logger.Error("ws command failed", slog.Any("error", err))
	}
}

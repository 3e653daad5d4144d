package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
)

// APIHandler serves the JSON endpoints for points, secondary auth and session finalization.
type APIHandler struct {
	service *app.QuizService
	points  *app.PointAwardService
	gate    *app.SecondaryAuthGate
	logger  *slog.Logger
}

func NewAPIHandler(service *app.QuizService, points *app.PointAwardService, gate *app.SecondaryAuthGate, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &APIHandler{
		service: service,
		points:  points,
		gate:    gate,
		logger:  logger.With(slog.String("component", "http-api")),
	}
}

// passwordRequest carries the secondary password. The participant always comes from
// the authenticated identity, never from the body.
type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
}

type spendRequest struct {
	Amount int `json:"amount"`
}

type spendResponse struct {
	Transaction domain.PointTransaction `json:"transaction"`
	Balance     int                     `json:"balance"`
}

type balanceResponse struct {
	ParticipantID string `json:"participantId"`
	Balance       int    `json:"balance"`
}

type historyResponse struct {
	Items []domain.PointTransaction `json:"items"`
	Page  int                       `json:"page"`
	Size  int                       `json:"size"`
}

type finalizeResponse struct {
	Rewards []domain.PointTransaction `json:"rewards"`
}

// SetSecondaryPassword handles POST /secondary-password behind requireParticipant.
// Replacing an existing password needs the current one.
func (h *APIHandler) SetSecondaryPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newValidationError("invalid request body"))
		return
	}
	participantID := participantFrom(r.Context())
	if err := h.gate.ChangePassword(r.Context(), participantID, req.CurrentPassword, req.Password); err != nil {
		h.logFailure("set secondary password failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IssueSecondaryToken handles POST /secondary-auth behind requireParticipant.
func (h *APIHandler) IssueSecondaryToken(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newValidationError("invalid request body"))
		return
	}
	token, err := h.gate.Issue(r.Context(), participantFrom(r.Context()), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// Spend handles POST /points/spend behind requireParticipant and requireSecondaryPassword.
func (h *APIHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newValidationError("invalid request body"))
		return
	}
	participantID := participantFrom(r.Context())
	tx, err := h.points.Spend(r.Context(), participantID, req.Amount, tokenFrom(r.Context()))
	if err != nil {
		h.logFailure("spend points failed", err)
		writeError(w, err)
		return
	}
	balance, err := h.points.Balance(r.Context(), participantID)
	if err != nil {
		h.logFailure("balance after spend failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spendResponse{Transaction: tx, Balance: balance})
}

// Balance handles GET /points/balance.
func (h *APIHandler) Balance(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())
	balance, err := h.points.Balance(r.Context(), participantID)
	if err != nil {
		h.logFailure("balance failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{ParticipantID: participantID, Balance: balance})
}

// History handles GET /points/history?type=&page=&size=.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	page, err := intParam(values.Get("page"))
	if err != nil {
		writeError(w, newValidationError("page must be an integer"))
		return
	}
	size, err := intParam(values.Get("size"))
	if err != nil {
		writeError(w, newValidationError("size must be an integer"))
		return
	}
	query, err := domain.NewPointHistoryQuery(values.Get("type"), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.points.History(r.Context(), participantFrom(r.Context()), query)
	if err != nil {
		h.logFailure("history failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Items: items, Page: query.Page, Size: query.Size})
}

// Finalize handles POST /sessions/{quizId}/finalize.
func (h *APIHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.service.Finalize(r.Context(), r.PathValue("quizId"))
	if err != nil {
		h.logFailure("finalize failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Rewards: rewards})
}

// Leaderboard handles GET /sessions/{quizId}/leaderboard.
func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("quizId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) logFailure(msg string, err error) {
	if toHTTPError(err).status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

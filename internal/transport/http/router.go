package http

import (
	"net/http"
)

// NewRouter mounts the websocket endpoint and the JSON API. Each API operation
// declares its guards next to its route.
func NewRouter(ws *WSHandler, api *APIHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("/ws", ws.ServeWS)

	mux.HandleFunc("POST /secondary-password", guarded(api.SetSecondaryPassword, requireParticipant))
	mux.HandleFunc("POST /secondary-auth", guarded(api.IssueSecondaryToken, requireParticipant))
	mux.HandleFunc("POST /points/spend", guarded(api.Spend,
		requireParticipant,
		requireSecondaryPassword(api.gate, "spend points", api.logger),
	))
	mux.HandleFunc("GET /points/balance", guarded(api.Balance, requireParticipant))
	mux.HandleFunc("GET /points/history", guarded(api.History, requireParticipant))
	mux.HandleFunc("POST /sessions/{quizId}/finalize", api.Finalize)
	mux.HandleFunc("GET /sessions/{quizId}/leaderboard", api.Leaderboard)
	return mux
}

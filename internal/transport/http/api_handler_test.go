package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"quiz-session-service/internal/domain"
)

func (e *testEnv) do(t *testing.T, method, path, participant, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if participant != "" {
		req.Header.Set(headerParticipant, participant)
	}
	if token != "" {
		req.Header.Set(headerSecondary, token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func errorCode(body map[string]any) any {
	apiErr, _ := body["error"].(map[string]any)
	return apiErr["code"]
}

func (e *testEnv) issueToken(t *testing.T, participant, password string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/secondary-auth", participant, "", map[string]string{
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSpendRequiresSecondaryPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.points.Finalize(context.Background(), domain.FinalStanding{
		SessionID: "s1",
		Standings: []domain.Standing{{UserID: "alice", Score: 5}},
	})
	require.NoError(t, err)

	resp, _ := env.do(t, http.MethodPost, "/secondary-password", "alice", "", map[string]string{
		"password": "hunter2",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/points/spend", "", "", map[string]int{"amount": 10})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, CodeAuthRequired, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", "", map[string]int{"amount": 10})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, CodeAuthRequired, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/secondary-auth", "alice", "", map[string]string{
		"password": "wrong",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, CodeAuthFailure, errorCode(body))

	token := env.issueToken(t, "alice", "hunter2")
	resp, body = env.do(t, http.MethodPost, "/points/spend", "bob", token, map[string]int{"amount": 10})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, body)

	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", token, map[string]int{"amount": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.EqualValues(t, 40, body["balance"])

	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", token, map[string]int{"amount": 10})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, CodeAuthRequired, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", env.issueToken(t, "alice", "hunter2"), map[string]int{"amount": 100})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, CodeInsufficientBalance, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", env.issueToken(t, "alice", "hunter2"), map[string]int{"amount": -1})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeValidation, errorCode(body))
}

func TestSecondaryPasswordIsBoundToCaller(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.points.Finalize(context.Background(), domain.FinalStanding{
		SessionID: "s1",
		Standings: []domain.Standing{{UserID: "alice", Score: 5}},
	})
	require.NoError(t, err)

	resp, _ := env.do(t, http.MethodPost, "/secondary-password", "alice", "", map[string]string{
		"password": "alice-secret",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/secondary-password", "", "", map[string]string{
		"participantId": "alice",
		"password":      "pwned",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, CodeAuthRequired, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/secondary-password", "alice", "", map[string]string{
		"password": "pwned",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, CodeAuthFailure, errorCode(body))

	// A body naming someone else only ever changes the caller's own password.
	resp, _ = env.do(t, http.MethodPost, "/secondary-password", "mallory", "", map[string]string{
		"participantId": "alice",
		"password":      "pwned",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/secondary-auth", "alice", "", map[string]string{
		"participantId": "alice",
		"password":      "pwned",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, CodeAuthFailure, errorCode(body))

	resp, body = env.do(t, http.MethodPost, "/secondary-auth", "", "", map[string]string{
		"password": "alice-secret",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/secondary-password", "alice", "", map[string]string{
		"currentPassword": "alice-secret",
		"password":        "rotated",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	token := env.issueToken(t, "alice", "rotated")
	resp, body = env.do(t, http.MethodPost, "/points/spend", "alice", token, map[string]int{"amount": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.EqualValues(t, 0, body["balance"])
}

func TestBalanceAndHistory(t *testing.T) {
	env := newTestEnv(t)
	for _, session := range []string{"s1", "s2"} {
		_, err := env.points.Finalize(context.Background(), domain.FinalStanding{
			SessionID: session,
			Standings: []domain.Standing{{UserID: "alice", Score: 2}},
		})
		require.NoError(t, err)
	}

	resp, body := env.do(t, http.MethodGet, "/points/balance", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/points/balance", "alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 40, body["balance"])

	resp, body = env.do(t, http.MethodGet, "/points/history?type=reward&page=-3&size=0", "alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, body["page"])
	require.EqualValues(t, domain.DefaultPageSize, body["size"])
	items, _ := body["items"].([]any)
	require.Len(t, items, 2)

	resp, body = env.do(t, http.MethodGet, "/points/history?type=bonus", "alice", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeValidation, errorCode(body))

	resp, body = env.do(t, http.MethodGet, "/points/history?page=two", "alice", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeValidation, errorCode(body))

	resp, body = env.do(t, http.MethodGet, "/points/history?page=3458764513820540928&size=4", "alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, _ = body["items"].([]any)
	require.Empty(t, items)

	resp, body = env.do(t, http.MethodGet, "/points/history?page=9223372036854775807&size=9223372036854775807", "alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, _ = body["items"].([]any)
	require.Len(t, items, 2)
}

func TestFinalizeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, body := env.do(t, http.MethodPost, "/sessions/quiz-1/finalize", "", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, CodeNotFound, errorCode(body))

	_, err := env.service.Join(ctx, "quiz-1", "u1", "Alice")
	require.NoError(t, err)
	require.NoError(t, env.service.Start(ctx, "quiz-1", "u1"))

	resp, body = env.do(t, http.MethodPost, "/sessions/quiz-1/finalize", "", "", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, CodeStateConflict, errorCode(body))

	_, _, err = env.service.SubmitAnswer(ctx, "quiz-1", "u1", domain.AnswerSubmission{QuestionNumber: 1, Answer: "4"})
	require.NoError(t, err)
	require.NoError(t, env.service.Finish(ctx, "quiz-1", "u1"))

	for i := 0; i < 2; i++ {
		resp, body = env.do(t, http.MethodPost, "/sessions/quiz-1/finalize", "", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		rewards, _ := body["rewards"].([]any)
		require.Len(t, rewards, 1)
		reward, _ := rewards[0].(map[string]any)
		require.EqualValues(t, 10, reward["amount"])
	}

	resp, body = env.do(t, http.MethodGet, "/sessions/quiz-1/leaderboard", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(domain.PhaseFinished), body["phase"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

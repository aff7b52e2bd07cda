package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialPlay(t *testing.T, server *httptest.Server, query, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/play?" + query
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) json.RawMessage {
	t.Helper()
	var msg wsMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read %s: %v", expect, err)
	}
	if msg.Type != expect {
		t.Fatalf("expected %s, got %s: %s", expect, msg.Type, msg.Payload)
	}
	return msg.Payload
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketPlayThrough(t *testing.T) {
	env := newTestEnv(t, 30)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialPlay(t, server, "quizId="+env.quiz.ID.String(), env.token(t))
	defer conn.Close()

	var started startedPayload
	if err := json.Unmarshal(readNext(t, conn, "started"), &started); err != nil {
		t.Fatalf("decode started: %v", err)
	}
	if started.TotalQuestions != 3 || started.Index != 0 || started.Question.ID != env.quiz.Questions[0].ID {
		t.Fatalf("unexpected started payload %+v", started)
	}
	if started.Deadline == nil {
		t.Fatalf("expected a deadline for a timed quiz")
	}

	// Correct, wrong, correct: [1,1,2] points.
	for i, selected := range []int{0, 3, 2} {
		send(t, conn, "answer", map[string]any{"selectedAnswer": selected})
		var result answerResultPayload
		if err := json.Unmarshal(readNext(t, conn, "answerResult"), &result); err != nil {
			t.Fatalf("decode answer result: %v", err)
		}
		if result.QuestionID != env.quiz.Questions[i].ID {
			t.Fatalf("answer result for wrong question %s", result.QuestionID)
		}
		if result.IsCorrect != (i != 1) {
			t.Fatalf("question %d: unexpected correctness %v", i, result.IsCorrect)
		}

		if i == 0 {
			// The question stays locked until the player advances.
			send(t, conn, "answer", map[string]any{"selectedAnswer": 1})
			readNext(t, conn, "error")
		}

		send(t, conn, "next", nil)
		if i < 2 {
			readNext(t, conn, "question")
		}
	}

	var summary struct {
		Score          int        `json:"score"`
		TotalQuestions int        `json:"totalQuestions"`
		Saved          bool       `json:"saved"`
		Confirmed      bool       `json:"confirmed"`
		ScoreID        *uuid.UUID `json:"scoreId"`
	}
	if err := json.Unmarshal(readNext(t, conn, "summary"), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Score != 3 || summary.TotalQuestions != 3 || !summary.Saved || !summary.Confirmed || summary.ScoreID == nil {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if env.scores.Count() != 1 {
		t.Fatalf("expected one stored score, got %d", env.scores.Count())
	}
}

func TestWebSocketResumeAttempt(t *testing.T) {
	env := newTestEnv(t, 30)
	server := httptest.NewServer(env.router)
	defer server.Close()
	token := env.token(t)

	conn := dialPlay(t, server, "quizId="+env.quiz.ID.String(), token)
	var started startedPayload
	if err := json.Unmarshal(readNext(t, conn, "started"), &started); err != nil {
		t.Fatalf("decode started: %v", err)
	}
	send(t, conn, "answer", map[string]any{"selectedAnswer": 0})
	readNext(t, conn, "answerResult")
	send(t, conn, "next", nil)
	readNext(t, conn, "question")
	conn.Close()

	resumed := dialPlay(t, server, "attemptId="+started.AttemptID.String()+"&token="+token, "")
	defer resumed.Close()
	var again startedPayload
	if err := json.Unmarshal(readNext(t, resumed, "started"), &again); err != nil {
		t.Fatalf("decode resumed: %v", err)
	}
	if again.AttemptID != started.AttemptID || again.Index != 1 {
		t.Fatalf("expected to resume at question 1, got %+v", again)
	}

	send(t, resumed, "finish", nil)
	var summary struct {
		Score          int `json:"score"`
		TotalQuestions int `json:"totalQuestions"`
	}
	if err := json.Unmarshal(readNext(t, resumed, "summary"), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Score != 1 || summary.TotalQuestions != 1 {
		t.Fatalf("expected only the answered question submitted, got %+v", summary)
	}
}

func TestWebSocketSecondFinishIsAnError(t *testing.T) {
	env := newTestEnv(t, 30)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialPlay(t, server, "quizId="+env.quiz.ID.String(), env.token(t))
	defer conn.Close()
	readNext(t, conn, "started")

	send(t, conn, "answer", map[string]any{"selectedAnswer": 0})
	readNext(t, conn, "answerResult")
	send(t, conn, "finish", nil)
	readNext(t, conn, "summary")

	send(t, conn, "finish", nil)
	var failure struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(readNext(t, conn, "error"), &failure); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if failure.Message != "attempt already finished" {
		t.Fatalf("unexpected error message %q", failure.Message)
	}
	if env.scores.Count() != 1 {
		t.Fatalf("expected a single stored score, got %d", env.scores.Count())
	}
}

func TestWebSocketRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, 30)
	server := httptest.NewServer(env.router)
	defer server.Close()

	cases := []struct {
		name   string
		query  string
		token  string
		status int
	}{
		{"no credential", "quizId=" + env.quiz.ID.String(), "", http.StatusUnauthorized},
		{"bad credential", "quizId=" + env.quiz.ID.String(), "nope", http.StatusUnauthorized},
		{"bad quiz id", "quizId=nope", env.token(t), http.StatusBadRequest},
		{"unknown quiz", "quizId=" + uuid.NewString(), env.token(t), http.StatusNotFound},
		{"unknown attempt", "attemptId=" + uuid.NewString(), env.token(t), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/play?" + tc.query
			header := http.Header{}
			if tc.token != "" {
				header.Set("Authorization", "Bearer "+tc.token)
			}
			_, resp, err := websocket.DefaultDialer.Dial(u, header)
			if err == nil {
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %+v", tc.status, resp)
			}
		})
	}
}

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/infra/memory"
)

const adminPassphrase = "letmein"

func TestWebSocketQuizFlow(t *testing.T) {
	server := newTestServer(t)

	admin := dial(t, server, "admin")
	readNext(t, admin, "hello")
	player := dial(t, server, "player")
	hello := readNext(t, player, "hello")
	if hello.Payload["clientId"] != "player" {
		t.Fatalf("expected client id echoed, got %v", hello.Payload)
	}

	send(t, player, "register", map[string]any{
		"email":           "a@x.com",
		"password":        "secret1",
		"confirmPassword": "secret1",
		"teamName":        "Alpha",
		"members":         []string{"Ann"},
	})
	readUntil(t, player, func(m message) bool { return m.Type == "notice" && m.Payload["title"] == "Registration Successful!" })
	readUntil(t, player, stateIs("waiting"))

	send(t, admin, "adminLogin", map[string]any{"passphrase": adminPassphrase})
	readUntil(t, admin, func(m message) bool { return m.Type == "notice" && m.Payload["title"] == "Welcome Admin!" })
	send(t, admin, "startQuiz", map[string]any{"minutes": 30})
	readUntil(t, admin, func(m message) bool { return m.Type == "notice" && m.Payload["title"] == "Quiz Started!" })

	readUntil(t, player, stateIs("active"))
	send(t, player, "answer", map[string]any{"questionId": "q1", "option": 1})
	send(t, player, "submit", nil)

	prompt := readUntil(t, player, func(m message) bool { return m.Type == "confirm" })
	if prompt.Payload["title"] != "Submit Quiz?" {
		t.Fatalf("unexpected prompt %v", prompt.Payload)
	}
	send(t, player, "confirmReply", map[string]any{"id": prompt.Payload["id"], "confirmed": true})

	notice := readUntil(t, player, func(m message) bool { return m.Type == "notice" && m.Payload["title"] == "Quiz Submitted!" })
	if notice.Payload["text"] != "Your score: 1/1 (100%)" {
		t.Fatalf("unexpected score notice %v", notice.Payload)
	}
	readUntil(t, player, stateIs("submitted"))
}

func TestWebSocketDuplicateAddressCanBeDeclined(t *testing.T) {
	server := newTestServer(t)

	first := dial(t, server, "first")
	readNext(t, first, "hello")
	send(t, first, "register", registration("a@x.com", "Alpha"))
	readUntil(t, first, stateIs("waiting"))

	second := dial(t, server, "second")
	readNext(t, second, "hello")
	send(t, second, "register", registration("b@x.com", "Beta"))

	prompt := readUntil(t, second, func(m message) bool { return m.Type == "confirm" })
	if prompt.Payload["title"] != "IP Already Registered" {
		t.Fatalf("unexpected prompt %v", prompt.Payload)
	}
	send(t, second, "confirmReply", map[string]any{"id": prompt.Payload["id"], "confirmed": false})

	failure := readUntil(t, second, func(m message) bool { return m.Type == "error" })
	if failure.Payload["kind"] != string(domain.KindCancelled) || failure.Payload["request"] != "register" {
		t.Fatalf("unexpected error %v", failure.Payload)
	}
}

func TestWebSocketResumesSessionByClientID(t *testing.T) {
	server := newTestServer(t)

	conn := dial(t, server, "returning")
	readNext(t, conn, "hello")
	send(t, conn, "register", registration("a@x.com", "Alpha"))
	readUntil(t, conn, stateIs("waiting"))
	conn.Close()

	again := dial(t, server, "returning")
	readNext(t, again, "hello")
	state := readUntil(t, again, stateIs("waiting"))
	team, _ := state.Payload["team"].(map[string]any)
	if team["teamName"] != "Alpha" {
		t.Fatalf("expected restored team, got %v", state.Payload["team"])
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "")
	hello := readNext(t, conn, "hello")
	if id, _ := hello.Payload["clientId"].(string); id == "" {
		t.Fatalf("expected a generated client id")
	}

	send(t, conn, "dance", nil)
	failure := readUntil(t, conn, func(m message) bool { return m.Type == "error" })
	if failure.Payload["kind"] != string(domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", failure.Payload)
	}

	send(t, conn, "startQuiz", map[string]any{"minutes": 30})
	failure = readUntil(t, conn, func(m message) bool { return m.Type == "error" })
	if failure.Payload["kind"] != string(domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", failure.Payload)
	}
}

func TestRemoteAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	if got := remoteAddress(r); got != "10.1.2.3" {
		t.Fatalf("expected host only, got %q", got)
	}
	r.RemoteAddr = "203.0.113.9"
	if got := remoteAddress(r); got != "203.0.113.9" {
		t.Fatalf("expected forwarded address kept, got %q", got)
	}
	r.RemoteAddr = ""
	if got := remoteAddress(r); got != domain.UnknownAddress {
		t.Fatalf("expected unknown, got %q", got)
	}
}

type message struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	teams := memory.NewTeamRepository()
	questions := memory.NewQuestionRepository(domain.Question{
		ID:            "q1",
		Question:      "What is 2 + 2?",
		Options:       []string{"3", "4", "5", "22"},
		CorrectAnswer: 1,
		CreatedAt:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	clock := memory.NewClockRepository()
	wsHandler := NewWSHandler(app.Deps{
		Teams:        teams,
		Questions:    questions,
		Clock:        clock,
		Sessions:     memory.NewSessionStore(),
		Admin:        app.NewAdminService(questions, teams, clock, adminPassphrase),
		TickInterval: -1,
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if clientID != "" {
		u += "?clientId=" + clientID
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": json.RawMessage(raw)}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) message {
	t.Helper()
	var msg message
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg
}

// readUntil skips messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(message) bool) message {
	t.Helper()
	for i := 0; i < 100; i++ {
		msg := readNext(t, conn, "")
		if match(msg) {
			return msg
		}
	}
	t.Fatalf("expected message not received")
	return message{}
}

func stateIs(state string) func(message) bool {
	return func(m message) bool {
		return m.Type == "state" && m.Payload["state"] == state
	}
}

func registration(email, team string) map[string]any {
	return map[string]any{
		"email":           email,
		"password":        "secret1",
		"confirmPassword": "secret1",
		"teamName":        team,
		"members":         []string{"Ann"},
	}
}

func TestOriginChecker(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.example")

	if !originChecker(nil)(r) || !originChecker([]string{"*"})(r) {
		t.Fatalf("expected open policy to allow any origin")
	}
	check := originChecker([]string{"http://localhost:3000"})
	if check(r) {
		t.Fatalf("expected unknown origin rejected")
	}
	r.Header.Set("Origin", "http://localhost:3000")
	if !check(r) {
		t.Fatalf("expected listed origin allowed")
	}
}

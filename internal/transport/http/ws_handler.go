package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

const (
	sendBuffer    = 64
	commandBuffer = 16
)

// WSHandler serves one orchestrator per connection. Deps is a template: the handler
// fills in the client's identity, confirmation and notification channels.
type WSHandler struct {
	deps     app.Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from the given browser origins; none or "*" allows any.
func NewWSHandler(deps app.Deps, log *zap.Logger, allowedOrigins ...string) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type helloPayload struct {
	ClientID string `json:"clientId"`
}

type errorPayload struct {
	Request string      `json:"request,omitempty"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

type confirmPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type confirmReplyPayload struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

type passphrasePayload struct {
	Passphrase string `json:"passphrase"`
}

type startQuizPayload struct {
	Minutes int `json:"minutes"`
}

type deleteQuestionPayload struct {
	ID string `json:"id"`
}

type navigatePayload struct {
	Fragment string `json:"fragment"`
}

var errBadPayload = errors.New("invalid payload")

// ServeWS upgrades the request and runs the client until the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := h.log.With(zap.String("client", clientID))
	client := newWSClient(conn, log)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writeLoop()
	}()

	deps := h.deps
	deps.Identity = app.StaticIdentity(remoteAddress(r))
	deps.Confirm = client
	deps.Notify = client
	deps.Log = log
	orch := app.NewOrchestrator(clientID, deps)

	client.enqueue(outboundMessage{Type: "hello", Payload: helloPayload{ClientID: clientID}})

	updates, stopUpdates := orch.Updates()
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		// the update feed already drops stale snapshots for a slow reader
		for snap := range updates {
			client.enqueue(outboundMessage{Type: "state", Payload: snap})
		}
	}()

	if err := orch.Start(ctx); err != nil {
		log.Warn("start session", zap.Error(err))
		client.sendError("boot", err)
	}

	commands := make(chan inboundMessage, commandBuffer)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for msg := range commands {
			if err := h.dispatch(ctx, orch, msg); err != nil {
				client.sendError(msg.Type, err)
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if inbound.Type == "confirmReply" {
			var reply confirmReplyPayload
			if err := json.Unmarshal(inbound.Payload, &reply); err != nil {
				client.sendError(inbound.Type, errBadPayload)
				continue
			}
			client.resolve(reply.ID, reply.Confirmed)
			continue
		}
		select {
		case commands <- inbound:
		case <-ctx.Done():
		}
	}

	// unblock pending prompts and commands, then tear down in dependency order
	cancel()
	close(commands)
	<-workerDone
	orch.Close()
	stopUpdates()
	<-forwardDone
	client.close()
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, o *app.Orchestrator, msg inboundMessage) error {
	switch msg.Type {
	case "register":
		var reg domain.Registration
		if err := decode(msg.Payload, &reg); err != nil {
			return err
		}
		_, err := o.Register(ctx, reg)
		return err
	case "login":
		var creds domain.Credentials
		if err := decode(msg.Payload, &creds); err != nil {
			return err
		}
		_, err := o.Login(ctx, creds)
		return err
	case "logout":
		o.Logout(ctx)
		return nil
	case "answer":
		var p answerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return o.SetAnswer(ctx, p.QuestionID, p.Option)
	case "submit":
		_, err := o.Submit(ctx)
		return err
	case "adminLogin":
		var p passphrasePayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return o.AdminLogin(ctx, p.Passphrase)
	case "adminLogout":
		o.AdminLogout()
		return nil
	case "startQuiz":
		var p startQuizPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return o.StartQuiz(ctx, p.Minutes)
	case "stopQuiz":
		return o.StopQuiz(ctx)
	case "addQuestion":
		var draft domain.QuestionDraft
		if err := decode(msg.Payload, &draft); err != nil {
			return err
		}
		_, err := o.AddQuestion(ctx, draft)
		return err
	case "deleteQuestion":
		var p deleteQuestionPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return o.DeleteQuestion(ctx, p.ID)
	case "navigate":
		var p navigatePayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		o.Navigate(p.Fragment)
		return nil
	case "watchLeaderboard":
		return o.WatchLeaderboard(ctx)
	case "unwatchLeaderboard":
		o.UnwatchLeaderboard()
		return nil
	default:
		return errUnsupported
	}
}

var errUnsupported = errors.New("unsupported message type")

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errBadPayload
	}
	return nil
}

// remoteAddress is the client's host as seen by the server. ProxyHeaders in front of
// the handler has already replaced RemoteAddr with the forwarded address, if any.
func remoteAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return domain.UnknownAddress
	}
	return host
}

// wsClient owns the socket's write side and the prompts awaiting a reply.
type wsClient struct {
	conn *websocket.Conn
	log  *zap.Logger
	send chan outboundMessage
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	nextPrompt int
	prompts    map[string]chan bool
}

func newWSClient(conn *websocket.Conn, log *zap.Logger) *wsClient {
	return &wsClient{
		conn:    conn,
		log:     log,
		send:    make(chan outboundMessage, sendBuffer),
		done:    make(chan struct{}),
		prompts: make(map[string]chan bool),
	}
}

// writeLoop is the only goroutine that writes to the socket.
func (c *wsClient) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("ws write error", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *wsClient) sendError(request string, err error) {
	kind := domain.KindOf(err)
	if errors.Is(err, errBadPayload) || errors.Is(err, errUnsupported) {
		kind = domain.KindValidation
	}
	c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Request: request, Kind: kind, Message: err.Error()}})
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Notify implements app.Notifier without blocking the caller.
func (c *wsClient) Notify(n domain.Notice) {
	select {
	case c.send <- outboundMessage{Type: "notice", Payload: n}:
	case <-c.done:
	default:
		c.log.Debug("dropping notice for slow client", zap.String("title", n.Title))
	}
}

// Confirm implements app.Confirmer as a round trip over the socket. A closed socket
// or cancelled context counts as a refusal.
func (c *wsClient) Confirm(ctx context.Context, p domain.Prompt) bool {
	c.mu.Lock()
	c.nextPrompt++
	id := strconv.Itoa(c.nextPrompt)
	reply := make(chan bool, 1)
	c.prompts[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.prompts, id)
		c.mu.Unlock()
	}()

	c.enqueue(outboundMessage{Type: "confirm", Payload: confirmPayload{ID: id, Title: p.Title, Text: p.Text}})
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *wsClient) resolve(id string, confirmed bool) {
	c.mu.Lock()
	reply, ok := c.prompts[id]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("reply for unknown prompt", zap.String("prompt", id))
		return
	}
	select {
	case reply <- confirmed:
	default:
	}
}

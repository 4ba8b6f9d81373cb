package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/domain"
)

// Scorer is the slice of the score engine the gateway dispatches to.
type Scorer interface {
	StartQuiz(ctx context.Context, user domain.Identity, quizID string) (domain.UserProgress, error)
	Standing(ctx context.Context, user domain.Identity, quizID string) (domain.UserProgress, error)
	Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
	Submit(ctx context.Context, sub domain.AnswerSubmission) (domain.ScoreResult, error)
}

// Authenticator turns a handshake token into an identity and confirms that identity still owns its
// session.
type Authenticator interface {
	Validate(ctx context.Context, token string) (domain.Identity, error)
	CheckSession(ctx context.Context, identity domain.Identity) error
}

// Fanout carries room broadcasts to every gateway instance, this one included.
type Fanout interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
	Subscribe(ctx context.Context, handler func(domain.RoomEvent)) error
}

// Options tunes connection handling. Zero values fall back to defaults.
type Options struct {
	EventTimeout   time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (o Options) withDefaults() Options {
	if o.EventTimeout <= 0 {
		o.EventTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 16 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// Gateway authenticates websocket connections, tracks room membership and routes client events to the
// score engine.
type Gateway struct {
	scorer   Scorer
	auth     Authenticator
	fanout   Fanout
	hub      *Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
	opts     Options
	log      logrus.FieldLogger
}

func NewGateway(scorer Scorer, auth Authenticator, fanout Fanout, logger logrus.FieldLogger, opts Options) *Gateway {
	return &Gateway{
		scorer:   scorer,
		auth:     auth,
		fanout:   fanout,
		hub:      NewHub(logger),
		validate: newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		opts: opts.withDefaults(),
		log:  logger,
	}
}

// Hub exposes the live connection table.
func (g *Gateway) Hub() *Hub { return g.hub }

// Start subscribes this instance to the fanout so remote broadcasts reach local room members.
func (g *Gateway) Start(ctx context.Context) error {
	return g.fanout.Subscribe(ctx, g.hub.EmitLocal)
}

// Shutdown closes every live connection with a going-away frame.
func (g *Gateway) Shutdown() {
	g.hub.CloseAll()
}

// ServeWS upgrades the request, authenticates the handshake token and then serves client events in order.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	identity, err := g.auth.Validate(r.Context(), handshakeToken(r))
	if err != nil {
		g.refuse(conn, err)
		return
	}

	connID := uuid.NewString()
	c := newClient(connID, identity, conn, g.opts.SendBuffer, g.log.WithFields(logrus.Fields{
		"conn_id": connID,
		"user_id": identity.UserID,
	}))
	g.hub.register(c)
	defer func() {
		g.hub.unregister(c)
		c.shutdown()
		c.log.Debug("connection closed")
	}()
	go c.writeLoop(g.opts.PingInterval, g.opts.WriteWait)

	c.log.Info("connection authenticated")
	c.emit(domain.EventConnected, connectedPayload{
		ConnectionID: c.id,
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
	})

	conn.SetReadLimit(g.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.emit(domain.EventError, errorPayload{Message: "malformed message"})
			continue
		}
		if !g.handle(c, msg) {
			<-c.stopped
			return
		}
	}
}

// refuse reports an authentication failure and closes the connection before any event is read.
func (g *Gateway) refuse(conn *websocket.Conn, err error) {
	defer conn.Close()
	reason := clientMessage(err)
	g.log.WithError(err).Info("ws handshake refused")

	deadline := time.Now().Add(g.opts.WriteWait)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(outboundMessage{Type: domain.EventError, Payload: errorPayload{Message: reason}})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
}

// handle dispatches one client event. It reports false once the connection has been terminated.
func (g *Gateway) handle(c *client, msg inboundMessage) bool {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.EventTimeout)
	defer cancel()

	switch msg.Type {
	case domain.EventJoinQuiz, domain.EventUserOnline, domain.EventUpdateScore:
		if err := g.auth.CheckSession(ctx, c.identity); err != nil {
			return g.sessionRejected(c, msg.Type, err)
		}
	}

	var err error
	switch msg.Type {
	case domain.EventJoinQuiz:
		err = g.joinQuiz(ctx, c, msg.Payload)
	case domain.EventLeaveQuiz:
		err = g.leaveQuiz(c, msg.Payload)
	case domain.EventUserOnline:
		err = g.userOnline(ctx, c, msg.Payload)
	case domain.EventUpdateScore:
		err = g.updateScore(ctx, c, msg.Payload)
	default:
		err = fmt.Errorf("%w: unsupported event type %q", domain.ErrInvalidSubmission, msg.Type)
	}
	if err == nil {
		return true
	}

	entry := c.log.WithField("event", msg.Type).WithError(err)
	if isClientError(err) {
		entry.Debug("event rejected")
	} else {
		entry.Warn("event failed")
	}
	c.emit(domain.EventError, errorPayload{Message: clientMessage(err)})
	return true
}

// sessionRejected answers an event from a connection whose session can no longer be confirmed. A
// replaced or expired session closes the connection; an unreachable session store only fails the event.
func (g *Gateway) sessionRejected(c *client, eventType string, err error) bool {
	reason := clientMessage(err)
	c.emit(domain.EventError, errorPayload{Message: reason})
	entry := c.log.WithField("event", eventType).WithError(err)
	if errors.Is(err, domain.ErrSessionMismatch) || errors.Is(err, domain.ErrSessionNotFound) {
		entry.Info("session no longer valid, closing connection")
		c.terminate(websocket.ClosePolicyViolation, reason)
		return false
	}
	entry.Warn("session check failed")
	return true
}

func (g *Gateway) joinQuiz(ctx context.Context, c *client, raw json.RawMessage) error {
	var p quizPayload
	if err := decodePayload(g.validate, raw, &p); err != nil {
		return err
	}
	progress, err := g.scorer.StartQuiz(ctx, c.identity, p.QuizID)
	if err != nil {
		return err
	}
	board, err := g.scorer.Leaderboard(ctx, p.QuizID)
	if err != nil {
		return err
	}
	if g.hub.join(c, p.QuizID) {
		c.log.WithField("quiz_id", p.QuizID).Info("joined room")
	}
	c.emit(domain.EventJoined, joinedPayload{QuizID: p.QuizID, Progress: progress, Leaderboard: board})
	return nil
}

func (g *Gateway) leaveQuiz(c *client, raw json.RawMessage) error {
	var p quizPayload
	if err := decodePayload(g.validate, raw, &p); err != nil {
		return err
	}
	g.hub.leave(c, p.QuizID)
	c.emit(domain.EventLeft, p)
	return nil
}

// userOnline shares the caller's standing with the room without mutating anything.
func (g *Gateway) userOnline(ctx context.Context, c *client, raw json.RawMessage) error {
	var p quizPayload
	if err := decodePayload(g.validate, raw, &p); err != nil {
		return err
	}
	progress, err := g.scorer.Standing(ctx, c.identity, p.QuizID)
	if err != nil {
		return err
	}
	entry := domain.EntryFromProgress(progress)
	if !g.hub.isMember(c.id, p.QuizID) {
		c.emit(domain.EventUpdateLeaderboard, entry)
	}
	g.broadcast(ctx, p.QuizID, domain.EventUpdateLeaderboard, entry)
	return nil
}

func (g *Gateway) updateScore(ctx context.Context, c *client, raw json.RawMessage) error {
	var p scorePayload
	if err := decodePayload(g.validate, raw, &p); err != nil {
		return err
	}
	result, err := g.scorer.Submit(ctx, domain.AnswerSubmission{
		QuizID:     p.QuizID,
		QuestionID: p.QuestionID,
		Answers:    p.Answers,
		User:       c.identity,
	})
	if err != nil {
		return err
	}
	c.emit(domain.EventUpdateResult, updateResultPayload{Result: result, CorrectAnswers: result.CorrectAnswers})
	if result.LeaderboardAffecting {
		g.broadcast(ctx, p.QuizID, domain.EventUpdateLeaderboard, domain.EntryFromProgress(result.Progress))
	}
	return nil
}

// broadcast publishes a room event through the fanout. When the fanout is down the event still reaches
// local members.
func (g *Gateway) broadcast(ctx context.Context, room, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.log.WithError(err).Error("marshal broadcast payload")
		return
	}
	event := domain.RoomEvent{Room: room, Type: eventType, Payload: data}
	if err := g.fanout.Publish(ctx, event); err != nil {
		g.log.WithFields(logrus.Fields{"room": room, "type": eventType}).WithError(err).Warn("fanout publish failed, emitting locally")
		g.hub.EmitLocal(event)
	}
}

func handshakeToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get("token")
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidSubmission) ||
		errors.Is(err, domain.ErrIncompleteQuizState) ||
		errors.Is(err, domain.ErrQuizNotFound) ||
		errors.Is(err, domain.ErrQuizNotPublished)
}

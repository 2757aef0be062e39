// Package chatroom relays chat room messages between service instances. A
// message is stored in PostgreSQL and announced with NOTIFY in the same
// statement; every instance LISTENs on the room channel and fans incoming
// messages out to its local subscribers.
package chatroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxlisten"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/waitqueue"
	"go.uber.org/zap"
)

// maxPayloadSize is the NOTIFY payload limit of PostgreSQL, minus one.
const maxPayloadSize = 7999

var (
	// ErrMessageTooLarge is returned when a message does not fit a notification.
	ErrMessageTooLarge = errors.New("chatroom: message too large")

	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("chatroom: subscription closed")

	roomNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)
)

// Message is one chat line.
type Message struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	PostedAt time.Time `json:"posted_at"`
}

// Room is one chat room backed by a postgres-dialect pool.
type Room struct {
	name    string
	channel string
	pool    *pool.Pool
	handler *ListenHandler
	logger  *zap.Logger
}

// Option configures a Room.
type Option func(*Room)

// WithLogger sets the logger of the room.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Room) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRoom returns the room called name. Names are lowercase letters, digits
// and underscores.
func NewRoom(name string, p *pool.Pool, opts ...Option) (*Room, error) {
	if !roomNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid room name %q", name)
	}
	if p == nil {
		return nil, fmt.Errorf("room %s: pool cannot be nil", name)
	}
	r := &Room{
		name:    name,
		channel: "chat_" + name,
		pool:    p,
		handler: &ListenHandler{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "chatroom"), zap.String("room", name))
	return r, nil
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Channel returns the LISTEN/NOTIFY channel of the room.
func (r *Room) Channel() string {
	return r.channel
}

// Handler returns the notification handler feeding the room's subscribers.
func (r *Room) Handler() *ListenHandler {
	return r.handler
}

const postQuery = `WITH inserted AS (
	INSERT INTO chat_message (id, room, author, body, posted_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
)
SELECT pg_notify($6, $7) FROM inserted`

// Post stores a message and notifies every listening instance.
func (r *Room) Post(ctx context.Context, author, body string) (Message, error) {
	msg := Message{
		ID:       uuid.NewString(),
		Room:     r.name,
		Author:   author,
		Body:     body,
		PostedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode message: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	err = r.pool.Cursor(ctx, pool.CursorDefault, func(cur *pool.Cursor) error {
		_, err := cur.Exec(ctx, postQuery,
			msg.ID, msg.Room, msg.Author, msg.Body, msg.PostedAt, r.channel, string(payload),
		)
		return err
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to post message to %s: %w", r.name, err)
	}
	r.logger.Debug("message posted", zap.String("id", msg.ID))
	return msg, nil
}

// History returns up to limit of the latest messages, oldest first.
func (r *Room) History(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var messages []Message
	err := r.pool.Cursor(ctx, pool.CursorTuple, func(cur *pool.Cursor) error {
		rows, err := cur.Query(ctx,
			"SELECT id, author, body, posted_at FROM chat_message WHERE room = $1 ORDER BY posted_at DESC LIMIT $2",
			r.name, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			msg := Message{Room: r.name}
			if err := rows.Scan(&msg.ID, &msg.Author, &msg.Body, &msg.PostedAt); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", r.name, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Subscription receives the messages of a room in arrival order.
type Subscription struct {
	id    string
	room  *Room
	queue *waitqueue.Queue[Message]
}

// Subscribe registers a receiver under id. An empty id gets a random one.
func (r *Room) Subscribe(id string) (*Subscription, error) {
	if id == "" {
		id = uuid.NewString()
	}
	q, err := r.handler.Register(id)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.name, err)
	}
	return &Subscription{id: id, room: r, queue: q}, nil
}

// ID returns the subscriber id.
func (s *Subscription) ID() string {
	return s.id
}

// Next blocks until a message arrives, ctx is done, or s is closed.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	msg, err := s.queue.Wait(ctx)
	if errors.Is(err, waitqueue.ErrClosed) {
		return Message{}, ErrSubscriptionClosed
	}
	return msg, err
}

// Pending returns the number of buffered messages.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// Close stops delivery. Buffered messages are dropped.
func (s *Subscription) Close() {
	s.room.handler.Unregister(s.id)
}

// Listen receives the room's notifications until ctx is done. connect opens
// the dedicated listening connection and is called again after a failure.
func (r *Room) Listen(ctx context.Context, connect func(context.Context) (*pgx.Conn, error)) error {
	listener := &pgxlisten.Listener{
		Connect: connect,
		LogError: func(_ context.Context, err error) {
			r.logger.Error("chat listener error", zap.Error(err))
		},
		ReconnectDelay: time.Second,
	}
	listener.Handle(r.channel, r.handler)

	r.logger.Info("listening", zap.String("channel", r.channel))
	return listener.Listen(ctx)
}

// Connector returns a connect function for Listen dialing connString.
func Connector(connString string) (func(context.Context) (*pgx.Conn, error), error) {
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid listen connection string: %w", err)
	}
	return func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.ConnectConfig(ctx, config.Copy())
	}, nil
}

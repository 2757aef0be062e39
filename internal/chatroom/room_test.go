package chatroom_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/connpool/internal/chatroom"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/pooltest"
)

func mockedRoom(t *testing.T) (*chatroom.Room, *pool.Pool, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := pooltest.NewFactory()
	f.NewQuerier = func() pool.Querier { return db }
	cfg := pool.DefaultConfig()
	cfg.MaxPoolSize = 1
	p, err := pool.New(context.Background(), "chat", f, cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	room, err := chatroom.NewRoom("lobby", p)
	require.NoError(t, err)
	return room, p, mock
}

// jsonArg matches a JSON encoded Message with the given body.
type jsonArg struct{ body string }

func (a jsonArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var msg chatroom.Message
	return json.Unmarshal([]byte(s), &msg) == nil && msg.Body == a.body && msg.Room == "lobby"
}

func TestNewRoom(t *testing.T) {
	t.Parallel()

	_, p, _ := mockedRoom(t)

	for _, name := range []string{"", "Lobby", "two words", strings.Repeat("x", 49)} {
		_, err := chatroom.NewRoom(name, p)
		assert.Error(t, err, "name %q should be rejected", name)
	}
	room, err := chatroom.NewRoom("general_2", p)
	require.NoError(t, err)
	assert.Equal(t, "chat_general_2", room.Channel())
}

func TestRoom_Post(t *testing.T) {
	t.Parallel()

	t.Run("stores and notifies in one statement", func(t *testing.T) {
		// Given
		room, p, mock := mockedRoom(t)
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($6, $7) FROM inserted")).
			WithArgs(sqlmock.AnyArg(), "lobby", "alice", "hello", sqlmock.AnyArg(), "chat_lobby", jsonArg{body: "hello"}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// When
		msg, err := room.Post(context.Background(), "alice", "hello")

		// Then
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "alice", msg.Author)
		assert.WithinDuration(t, time.Now(), msg.PostedAt, time.Minute)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, p.FreeSize(), "connection should be returned")
	})

	t.Run("rejects oversized messages", func(t *testing.T) {
		room, _, mock := mockedRoom(t)

		_, err := room.Post(context.Background(), "alice", strings.Repeat("x", 8000))

		require.ErrorIs(t, err, chatroom.ErrMessageTooLarge)
		require.NoError(t, mock.ExpectationsWereMet(), "nothing should reach the database")
	})

	t.Run("reports database failures", func(t *testing.T) {
		room, _, mock := mockedRoom(t)
		mock.ExpectExec("pg_notify").WillReturnError(errors.New("relation does not exist"))

		_, err := room.Post(context.Background(), "alice", "hello")

		require.ErrorContains(t, err, "relation does not exist")
	})
}

func TestRoom_History(t *testing.T) {
	t.Parallel()

	// Given
	room, _, mock := mockedRoom(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM chat_message WHERE room = $1 ORDER BY posted_at DESC LIMIT $2")).
		WithArgs("lobby", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author", "body", "posted_at"}).
			AddRow("2", "bob", "second", now).
			AddRow("1", "alice", "first", now.Add(-time.Second)))

	// When
	messages, err := room.History(context.Background(), 2)

	// Then
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Body, "history is oldest first")
	assert.Equal(t, "second", messages[1].Body)
	assert.Equal(t, "lobby", messages[1].Room)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoom_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("receives dispatched messages", func(t *testing.T) {
		// Given
		room, _, _ := mockedRoom(t)
		sub, err := room.Subscribe("")
		require.NoError(t, err)
		t.Cleanup(sub.Close)
		require.NotEmpty(t, sub.ID())

		// When
		room.Handler().Dispatch(chatroom.Message{ID: "1", Body: "hi"})

		// Then
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hi", msg.Body)
		assert.Zero(t, sub.Pending())
	})

	t.Run("close releases a blocked reader", func(t *testing.T) {
		room, _, _ := mockedRoom(t)
		sub, err := room.Subscribe("reader")
		require.NoError(t, err)

		errs := make(chan error, 1)
		go func() {
			_, err := sub.Next(context.Background())
			errs <- err
		}()

		sub.Close()

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, chatroom.ErrSubscriptionClosed)
		case <-time.After(time.Second):
			t.Fatal("reader was not released")
		}
	})

	t.Run("rejects duplicate subscriber ids", func(t *testing.T) {
		room, _, _ := mockedRoom(t)
		sub, err := room.Subscribe("same")
		require.NoError(t, err)
		t.Cleanup(sub.Close)

		_, err = room.Subscribe("same")

		assert.ErrorContains(t, err, "duplicate id")
	})
}

func TestSetup(t *testing.T) {
	t.Parallel()

	t.Run("creates the table", func(t *testing.T) {
		// Given
		_, p, mock := mockedRoom(t)
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("to_regclass").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_message").
			WillReturnResult(sqlmock.NewResult(0, 0))

		// When
		err := chatroom.Setup(context.Background(), p)

		// Then
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does nothing when the table exists", func(t *testing.T) {
		_, p, mock := mockedRoom(t)
		mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("to_regclass").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, chatroom.Setup(context.Background(), p))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		// Given
		_, p, mock := mockedRoom(t)
		mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(errors.New("permission denied"))

		// When
		err := chatroom.Setup(context.Background(), p)

		// Then
		require.ErrorContains(t, err, "failed to acquire advisory lock")
		assert.Equal(t, 1, p.FreeSize())
	})
}

package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/RichardoC/convostore/internal/db"
	"github.com/RichardoC/convostore/internal/llm"
	"github.com/RichardoC/convostore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGenerator struct {
	reply   string
	fail    error
	calls   int
	history [][]llm.Turn
}

func (g *stubGenerator) Generate(_ context.Context, history []llm.Turn) llm.Result {
	g.calls++
	g.history = append(g.history, append([]llm.Turn(nil), history...))
	if g.fail != nil {
		return llm.Failure(g.fail)
	}
	return llm.Success(g.reply)
}

func newTestStore(t *testing.T) *db.Database {
	t.Helper()
	d, err := db.New(context.Background(), db.Options{Driver: db.DriverSQLite, DSN: filepath.Join(t.TempDir(), "chat.db")})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestExchangeStoresUserThenAssistant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	gen := &stubGenerator{reply: "Hello there"}
	svc := NewService(store, gen, zap.NewNop())

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	reply, err := svc.Exchange(ctx, conv.ID, models.RoleUser, "Hi")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello there", reply.Content)
	assert.Equal(t, conv.ID, reply.ConversationID)
	assert.NotZero(t, reply.ID)
	assert.Equal(t, 1, gen.calls)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.False(t, msgs[1].CreatedAt.Before(msgs[0].CreatedAt))
}

func TestExchangeHistoryIncludesNewMessageInOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	gen := &stubGenerator{reply: "ok"}
	svc := NewService(store, gen, zap.NewNop())

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	_, err = svc.Exchange(ctx, conv.ID, models.RoleUser, "one")
	require.NoError(t, err)
	_, err = svc.Exchange(ctx, conv.ID, models.RoleUser, "two")
	require.NoError(t, err)

	require.Len(t, gen.history, 2)
	assert.Equal(t, []llm.Turn{{Role: "user", Content: "one"}}, gen.history[0])
	assert.Equal(t, []llm.Turn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "two"},
	}, gen.history[1])

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, role := range []string{"user", "assistant", "user", "assistant"} {
		assert.Equal(t, role, msgs[i].Role)
		if i > 0 {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}
}

func TestExchangeUnknownConversationWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	gen := &stubGenerator{reply: "unused"}
	svc := NewService(store, gen, zap.NewNop())

	other, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	_, err = svc.Exchange(ctx, other.ID+100, models.RoleUser, "hello?")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, gen.calls)

	convs, err := store.ListConversations(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
	msgs, err := store.ListMessages(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestExchangeFallsBackWhenGenerationFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	gen := &stubGenerator{fail: errors.New("connection refused")}
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewService(store, gen, zap.New(core))

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	reply, err := svc.Exchange(ctx, conv.ID, models.RoleUser, "are you up?")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, FallbackReply, reply.Content)
	assert.Equal(t, 1, gen.calls)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "are you up?", msgs[0].Content)
	assert.Equal(t, FallbackReply, msgs[1].Content)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, conv.ID, fields["conversationID"])
	assert.Contains(t, fields["error"], "connection refused")
	assert.Contains(t, fields["error"], llm.ErrGenerationFailed.Error())
}

func TestExchangeDefaultsEmptyRoleToUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, &stubGenerator{reply: "hi"}, zap.NewNop())

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	_, err = svc.Exchange(ctx, conv.ID, "", "no role given")
	require.NoError(t, err)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

type brokenStore struct {
	Store
	err error
}

func (s brokenStore) CreateMessage(context.Context, int64, string, string) (*models.Message, error) {
	return nil, s.err
}

func TestExchangeSurfacesStoreFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	gen := &stubGenerator{reply: "unused"}
	svc := NewService(brokenStore{Store: store, err: errors.New("disk full")}, gen, zap.NewNop())

	_, err = svc.Exchange(ctx, conv.ID, models.RoleUser, "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, gen.calls)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgrant/session-server-go/internal/model"
	redisclient "github.com/smartgrant/session-server-go/internal/redis"
)

func newTestCache(t *testing.T) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	return NewSessionCache(client), mr
}

func testSession() *model.Session {
	return &model.Session{
		ID:       "11111111-2222-3333-4444-555555555555",
		Owner:    "0xowner",
		Redeemer: "0xredeemer",
		Name:     "Test Session",
		Status:   model.SessionStatusActive,
	}
}

func TestSessionCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	session := testSession()

	assert.Nil(t, c.Get(ctx, session.ID))

	c.Set(ctx, session)

	cached := c.Get(ctx, session.ID)
	require.NotNil(t, cached)
	assert.Equal(t, session.ID, cached.ID)
	assert.Equal(t, session.Owner, cached.Owner)
	assert.Equal(t, model.SessionStatusActive, cached.Status)
}

func TestSessionCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	session := testSession()

	c.Set(ctx, session)
	c.Invalidate(ctx, session.ID)

	assert.Nil(t, c.Get(ctx, session.ID))
}

func TestSessionCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	session := testSession()

	c.Set(ctx, session)
	mr.FastForward(defaultTTL + time.Second)

	assert.Nil(t, c.Get(ctx, session.ID))
}

func TestSessionCacheCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(redisclient.SessionKey("bad-id"), "{not-json"))

	assert.Nil(t, c.Get(ctx, "bad-id"))
	// Corrupt entry is dropped on read
	assert.False(t, mr.Exists(redisclient.SessionKey("bad-id")))
}

func TestSessionCacheToleratesOutage(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	session := testSession()

	mr.Close()

	// Best effort: no panics, no errors surfaced
	c.Set(ctx, session)
	assert.Nil(t, c.Get(ctx, session.ID))
	c.Invalidate(ctx, session.ID)
}

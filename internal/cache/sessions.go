package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smartgrant/session-server-go/internal/model"
	redisclient "github.com/smartgrant/session-server-go/internal/redis"
)

const defaultTTL = 30 * time.Second

// SessionCache is a best-effort read cache in front of the record store.
// Every operation degrades to a miss on failure; errors are logged and never
// surfaced, since a cache outage must not affect request handling.
type SessionCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

func NewSessionCache(client *redisclient.Client) *SessionCache {
	return &SessionCache{client: client, ttl: defaultTTL}
}

func (c *SessionCache) Get(ctx context.Context, id string) *model.Session {
	data, err := c.client.Get(ctx, redisclient.SessionKey(id)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("sessionId", id).Msg("session cache read failed")
		}
		return nil
	}

	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("session cache entry corrupt, dropping")
		c.Invalidate(ctx, id)
		return nil
	}

	return &session
}

func (c *SessionCache) Set(ctx context.Context, session *model.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("session cache marshal failed")
		return
	}

	if err := c.client.Set(ctx, redisclient.SessionKey(session.ID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("session cache write failed")
	}
}

func (c *SessionCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, redisclient.SessionKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("session cache invalidate failed")
	}
}

// Package redisstore persists sessions in Redis with a per-session TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/session"
)

const keyPrefix = "sess:"

type store struct {
	client *redis.Client
}

var _ session.Store = (*store)(nil)

func NewStore(client *redis.Client) session.Store {
	return &store{client: client}
}

// NewClient builds a Redis client from the app config and pings it so
// misconfiguration surfaces at startup rather than on the first request.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func (s *store) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, session.ErrNotFound
		}
		return nil, errors.Wrap(err, "reading session")
	}
	sess := new(session.Session)
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	return sess, nil
}

func (s *store) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, raw, ttl).Err(); err != nil {
		return errors.Wrap(err, "writing session")
	}
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

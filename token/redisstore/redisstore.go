// Package redisstore keeps tokens in a Redis hash, one hash per backend origin,
// so several hosts can share a session.
package redisstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-admin-client/token"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "admin-client"
	defaultTimeout   = 3 * time.Second
	connectAttempts  = 3
	connectBackoff   = 500 * time.Millisecond
)

var _ token.Storage = (*Store)(nil)

// Store is a Redis-backed token.Storage.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	key     string
	timeout time.Duration
}

type Option func(*Store)

// WithTimeout bounds every Redis round trip. Defaults to three seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithKeyPrefix changes the namespace in front of the origin name.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func New(client redis.UniversalClient, apiURL string, opts ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  defaultKeyPrefix,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.key = s.prefix + ":" + token.OriginName(apiURL) + ":tokens"
	return s
}

// Connect opens a client and pings it, retrying a few times before giving up.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultTimeout,
		ReadTimeout:  defaultTimeout,
		WriteTimeout: defaultTimeout,
	})

	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(connectBackoff)
		}
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
	}
	_ = client.Close()
	return nil, errors.Wrapf(lastErr, "[redisstore.Connect] ping %s after %d attempts", addr, connectAttempts)
}

// Key is the hash holding this origin's tokens.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[Store.Get] hget %s", key)
	}
	return value, true, nil
}

// Set applies all writes and deletes in one MULTI/EXEC transaction.
func (s *Store) Set(values map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	set := make(map[string]any, len(values))
	var del []string
	for key, value := range values {
		if value == "" {
			del = append(del, key)
			continue
		}
		set[key] = value
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, s.key, set)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, s.key, del...)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "[Store.Set] write tokens")
	}
	return nil
}

func (s *Store) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil {
		return errors.Wrap(err, "[Store.Remove] delete tokens")
	}
	return nil
}

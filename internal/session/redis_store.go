// Package session caches issued guest sessions in Redis, keyed by the hash
// of the session token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("guest session not found or expired")

// GuestSession is what a guest bearer token resolves to.
type GuestSession struct {
	SessionID      string    `json:"session_id"`
	ShareLinkID    string    `json:"share_link_id"`
	CollaboratorID string    `json:"collaborator_id"`
	DocumentID     string    `json:"document_id"`
	WorkspaceID    string    `json:"workspace_id"`
	AccessLevel    string    `json:"access_level"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "odocs:guest:",
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + "session:" + tokenHash
}

func (s *RedisStore) linkKey(shareLinkID string) string {
	return s.prefix + "link:" + shareLinkID
}

// Save caches the session until it expires and indexes it under its share
// link so the link can evict all of its sessions at once.
func (s *RedisStore) Save(ctx context.Context, tokenHash string, guest GuestSession) error {
	ttl := time.Until(guest.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(guest)
	if err != nil {
		return fmt.Errorf("marshal guest session: %w", err)
	}

	linkKey := s.linkKey(guest.ShareLinkID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(tokenHash), payload, ttl)
	pipe.SAdd(ctx, linkKey, tokenHash)
	// The index lives as long as its longest-lived session. Re-caching an
	// older session must never shorten it.
	pipe.ExpireNX(ctx, linkKey, ttl)
	pipe.ExpireGT(ctx, linkKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save guest session: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (GuestSession, error) {
	payload, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return GuestSession{}, ErrSessionNotFound
	}
	if err != nil {
		return GuestSession{}, fmt.Errorf("lookup guest session: %w", err)
	}

	var guest GuestSession
	if err := json.Unmarshal(payload, &guest); err != nil {
		return GuestSession{}, fmt.Errorf("unmarshal guest session: %w", err)
	}
	if !guest.ExpiresAt.After(time.Now()) {
		return GuestSession{}, ErrSessionNotFound
	}
	return guest, nil
}

// Delete evicts a single cached session.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("delete guest session: %w", err)
	}
	return nil
}

// RevokeShareLink evicts every cached session issued under the link.
func (s *RedisStore) RevokeShareLink(ctx context.Context, shareLinkID string) error {
	linkKey := s.linkKey(shareLinkID)
	hashes, err := s.client.SMembers(ctx, linkKey).Result()
	if err != nil {
		return fmt.Errorf("list guest sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, s.key(hash))
	}
	keys = append(keys, linkKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict guest sessions: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

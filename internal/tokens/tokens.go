// Package tokens mints and verifies attendance tokens on the server side.
// A token lives in the store exactly as long as it is valid.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campus/internal/attendance"
)

// Store keeps live tokens by id.
type Store interface {
	Save(ctx context.Context, tok attendance.Token) error
	Get(ctx context.Context, id string) (attendance.Token, error)
}

// RedisStore keeps each token under prefix+id with a TTL matching its expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "campus:token:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Save(ctx context.Context, tok attendance.Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return attendance.ErrTokenExpired
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+tok.Token, b, ttl).Err()
}

// Get returns ErrInvalidToken for ids that were never issued or have expired.
func (s *RedisStore) Get(ctx context.Context, id string) (attendance.Token, error) {
	b, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return attendance.Token{}, attendance.ErrInvalidToken
		}
		return attendance.Token{}, err
	}
	var tok attendance.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return attendance.Token{}, fmt.Errorf("decode stored token: %w", err)
	}
	return tok, nil
}

// Memory is a map-backed Store for QUEUE_BACKEND=memory setups and tests.
type Memory struct {
	mu  sync.Mutex
	m   map[string]attendance.Token
	now attendance.Clock
}

func NewMemory(now attendance.Clock) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{m: make(map[string]attendance.Token), now: now}
}

func (s *Memory) Save(ctx context.Context, tok attendance.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[tok.Token] = tok
	return nil
}

func (s *Memory) Get(ctx context.Context, id string) (attendance.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.m[id]
	if !ok {
		return attendance.Token{}, attendance.ErrInvalidToken
	}
	if tok.Expired(s.now()) {
		delete(s.m, id)
		return attendance.Token{}, attendance.ErrInvalidToken
	}
	return tok, nil
}

// Minter issues tokens with a fixed validity window.
type Minter struct {
	store Store
	ttl   time.Duration
	now   attendance.Clock
}

func NewMinter(store Store, ttl time.Duration, now attendance.Clock) *Minter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Minter{store: store, ttl: ttl, now: now}
}

// Mint creates and stores a token for a subject.
func (m *Minter) Mint(ctx context.Context, subjectID, teacherID int64) (attendance.Token, error) {
	now := m.now().UTC().Truncate(time.Second)
	tok := attendance.Token{
		Token:       uuid.NewString(),
		Subject:     subjectID,
		Teacher:     teacherID,
		GeneratedAt: now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, tok); err != nil {
		return attendance.Token{}, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// Verify checks that id is a live token for subjectID.
func (m *Minter) Verify(ctx context.Context, id string, subjectID int64) (attendance.Token, error) {
	if id == "" {
		return attendance.Token{}, attendance.ErrInvalidToken
	}
	tok, err := m.store.Get(ctx, id)
	if err != nil {
		return attendance.Token{}, err
	}
	if tok.Expired(m.now()) {
		return attendance.Token{}, attendance.ErrTokenExpired
	}
	if tok.Subject != subjectID {
		return attendance.Token{}, attendance.ErrSubjectMismatch
	}
	return tok, nil
}

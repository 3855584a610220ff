package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gogogo1024/campus-desk/internal/ai/chain"
)

// maxHistory is how many chat messages a session keeps for the LLM fallback.
const maxHistory = 10

// Draft is a ticket the bot offered to create and is waiting on a yes or no for.
type Draft struct {
	Message     string `json:"message"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

type Session struct {
	Draft     *Draft              `json:"draft,omitempty"`
	History   []chain.ChatMessage `json:"history,omitempty"`
	UpdatedAt int64               `json:"updated_at"`
}

func (s *Session) remember(msgs ...chain.ChatMessage) {
	s.History = append(s.History, msgs...)
	if n := len(s.History); n > maxHistory {
		s.History = append([]chain.ChatMessage(nil), s.History[n-maxHistory:]...)
	}
}

// SessionStore keeps conversation state between messages. Get returns nil, nil for an
// unknown or expired key.
type SessionStore interface {
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	s       Session
	expires time.Time
}

// MemorySessionStore expires sessions lazily on access and in Sweep.
type MemorySessionStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryEntry
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemorySessionStore{ttl: ttl, now: time.Now, data: map[string]memoryEntry{}}
}

func (m *MemorySessionStore) Get(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.data, key)
		return nil, nil
	}
	s := e.s
	s.History = append([]chain.ChatMessage(nil), e.s.History...)
	if e.s.Draft != nil {
		d := *e.s.Draft
		s.Draft = &d
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(ctx context.Context, key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = append([]chain.ChatMessage(nil), s.History...)
	m.data[key] = memoryEntry{s: cp, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemorySessionStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.data {
		if !now.Before(e.expires) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// RedisSessionStore keeps each session as a JSON string with a TTL refreshed on save.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{client: client, prefix: "campusdesk:chat:", ttl: ttl}
}

func (r *RedisSessionStore) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// a session we cannot read is treated as gone
		return nil, nil
	}
	return &s, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, key string, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

func (r *RedisSessionStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

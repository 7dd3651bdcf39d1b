// Package cache holds the shared, deduplicated copies of users, custom emoji and
// recent messages.
//
// Users and emoji are stored on first sighting and the stored instance is returned
// for every later sighting of the same id, so every message that mentions a user
// points at the same *entity.User. Messages live in a bounded FIFO store; updates are
// merged into the cached instance in place so previously handed out pointers observe
// them.
//
// Mutation is expected to come from the gateway's event loop, but every method is
// safe for concurrent use.
package cache

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"sync"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/snowflake"
)

type Config struct {
	// MaxMessages bounds the message store. Zero means unbounded.
	MaxMessages int
	// RefreshUsers makes later sightings of a user or emoji overwrite the stored
	// instance in place instead of being discarded.
	RefreshUsers bool
}

type Cache struct {
	mu sync.RWMutex

	users  map[snowflake.Snowflake]*entity.User
	emojis map[snowflake.Snowflake]*entity.Emoji

	messages map[snowflake.Snowflake]*list.Element
	order    *list.List // front is oldest

	maxMessages  int
	refreshUsers bool
	logger       *slog.Logger
}

// Stats is a point-in-time count of cached entries.
type Stats struct {
	Users    int
	Emojis   int
	Messages int
}

var _ entity.Resolver = (*Cache)(nil)

func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	maxMessages := cfg.MaxMessages
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &Cache{
		users:        make(map[snowflake.Snowflake]*entity.User),
		emojis:       make(map[snowflake.Snowflake]*entity.Emoji),
		messages:     make(map[snowflake.Snowflake]*list.Element),
		order:        list.New(),
		maxMessages:  maxMessages,
		refreshUsers: cfg.RefreshUsers,
		logger:       logger.With("component", "cache"),
	}
}

// UpsertUser returns the cached user for the payload's id, storing it if unseen.
func (c *Cache) UpsertUser(raw json.RawMessage) (*entity.User, error) {
	u, err := entity.DecodeUser(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.users[u.ID]; ok {
		if c.refreshUsers {
			*existing = *u
		}
		return existing, nil
	}
	c.users[u.ID] = u
	return u, nil
}

// UpsertEmoji returns the cached emoji for the payload's id, storing it if unseen.
// Unicode emoji have no id and are returned without being cached.
func (c *Cache) UpsertEmoji(raw json.RawMessage) (*entity.Emoji, error) {
	e, err := entity.DecodeEmoji(raw, c)
	if err != nil {
		return nil, err
	}
	if !e.Custom() {
		return e, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.emojis[e.ID]; ok {
		if c.refreshUsers {
			*existing = *e
		}
		return existing, nil
	}
	c.emojis[e.ID] = e
	return e, nil
}

// UpsertMessage stores a message. When isUpdate is set and the message is cached,
// the payload is merged over the cached copy and the same pointer is returned.
// Otherwise the payload is decoded and inserted, evicting the oldest message first
// when the store is full. Inserting an id that is already cached returns the
// existing entry unchanged.
func (c *Cache) UpsertMessage(raw json.RawMessage, isUpdate bool) (*entity.Message, error) {
	if isUpdate {
		if m, ok, err := c.mergeMessage(raw); ok || err != nil {
			return m, err
		}
	}

	m, err := entity.DecodeMessage(raw, c)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.messages[m.ID]; ok {
		return el.Value.(*entity.Message), nil
	}
	c.insertLocked(m)
	return m, nil
}

// mergeMessage reports ok=false when the message is not cached. Decoding runs
// unlocked because resolving nested users re-enters the cache.
func (c *Cache) mergeMessage(raw json.RawMessage) (*entity.Message, bool, error) {
	var ref struct {
		ID snowflake.Snowflake `json:"id"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, false, &entity.DecodeError{Kind: "message", Err: err}
	}

	c.mu.RLock()
	el, ok := c.messages[ref.ID]
	var base json.RawMessage
	if ok {
		base = el.Value.(*entity.Message).Raw
	}
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	fresh, err := entity.MergeMessage(base, raw, c)
	if err != nil {
		return nil, true, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.messages[ref.ID]; ok {
		existing := el.Value.(*entity.Message)
		*existing = *fresh
		return existing, true, nil
	}
	// Evicted while we were decoding.
	c.insertLocked(fresh)
	return fresh, true, nil
}

// insertLocked must be called with mu held for writing.
func (c *Cache) insertLocked(m *entity.Message) {
	if c.maxMessages > 0 {
		for c.order.Len() >= c.maxMessages {
			oldest := c.order.Front()
			evicted := c.order.Remove(oldest).(*entity.Message)
			delete(c.messages, evicted.ID)
			c.logger.Debug("evicted message", "message_id", evicted.ID.String())
		}
	}
	c.messages[m.ID] = c.order.PushBack(m)
}

// Message looks up a cached message. It does not affect eviction order.
func (c *Cache) Message(id snowflake.Snowflake) *entity.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if el, ok := c.messages[id]; ok {
		return el.Value.(*entity.Message)
	}
	return nil
}

// RemoveMessage drops a message and returns it, or nil if it was not cached.
func (c *Cache) RemoveMessage(id snowflake.Snowflake) *entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.messages[id]
	if !ok {
		return nil
	}
	delete(c.messages, id)
	return c.order.Remove(el).(*entity.Message)
}

// AddReaction applies a reaction to a cached message and returns it, or nil when
// the message is not cached.
func (c *Cache) AddReaction(messageID snowflake.Snowflake, emoji *entity.Emoji, me bool) *entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.messages[messageID]
	if !ok {
		return nil
	}
	m := el.Value.(*entity.Message)
	m.AddReaction(emoji, me)
	return m
}

func (c *Cache) User(id snowflake.Snowflake) *entity.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[id]
}

func (c *Cache) Emoji(id snowflake.Snowflake) *entity.Emoji {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emojis[id]
}

// StoreUser caches a user decoded elsewhere (e.g. from a REST call) and returns the
// canonical instance.
func (c *Cache) StoreUser(u *entity.User) *entity.User {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.users[u.ID]; ok {
		if c.refreshUsers {
			*existing = *u
		}
		return existing
	}
	c.users[u.ID] = u
	return u
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Users:    len(c.users),
		Emojis:   len(c.emojis),
		Messages: c.order.Len(),
	}
}

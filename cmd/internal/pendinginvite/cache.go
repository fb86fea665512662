// Package pendinginvite remembers one invite link opened before sign-in so
// it can be redeemed once the user authenticates.
package pendinginvite

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tavern/cmd/internal/localstore"
)

// DefaultTTL bounds how long a pending invite survives.
const DefaultTTL = 24 * time.Hour

// Invite is the persisted record.
type Invite struct {
	Token     string `json:"token"`
	WorldName string `json:"worldName"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// SavedAt returns the record's creation time.
func (i Invite) SavedAt() time.Time { return time.UnixMilli(i.Timestamp) }

type Cache struct {
	store localstore.KV
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCache(store localstore.KV, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: DefaultTTL, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Save overwrites any pending invite. Blank tokens are ignored.
func (c *Cache) Save(ctx context.Context, token, worldName string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	b, err := json.Marshal(Invite{
		Token:     token,
		WorldName: strings.TrimSpace(worldName),
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		c.log.Error("pendinginvite.encode", "err", err)
		return
	}
	c.store.Set(ctx, localstore.KeyPendingInvite, string(b))
	c.log.Info("pendinginvite.saved", "world_name", worldName)
}

// Peek returns the pending invite while it is younger than the TTL.
// Expired or unreadable records are deleted and never returned.
func (c *Cache) Peek(ctx context.Context) (Invite, bool) {
	raw, ok := c.store.Get(ctx, localstore.KeyPendingInvite)
	if !ok {
		return Invite{}, false
	}

	var inv Invite
	if err := json.Unmarshal([]byte(raw), &inv); err != nil || inv.Token == "" {
		c.log.Warn("pendinginvite.malformed", "err", err)
		c.Clear(ctx)
		return Invite{}, false
	}

	if c.now().Sub(inv.SavedAt()) > c.ttl {
		c.log.Info("pendinginvite.expired", "world_name", inv.WorldName)
		c.Clear(ctx)
		return Invite{}, false
	}
	return inv, true
}

// Clear consumes the pending invite.
func (c *Cache) Clear(ctx context.Context) {
	c.store.Remove(ctx, localstore.KeyPendingInvite)
}

package token

import (
	"context"
	"sync"
	"time"
)

// expiryMargin is how much remaining life a cached token must have before it
// is served. Anything closer to expiry is reminted so the upstream never sees
// a token that dies mid flight.
const expiryMargin = 60 * time.Second

// TokenMinter mints a fresh upstream token.
type TokenMinter interface {
	Mint(ctx context.Context) (*Token, error)
}

// Cache keeps the most recent token and remints when it is missing or inside
// the expiry margin. One slot is enough because every request shares the same
// upstream identity. The lock is held across the mint so concurrent callers
// converge on a single mint instead of racing.
type Cache struct {
	minter TokenMinter
	mu     sync.Mutex
	tok    *Token
	now    func() time.Time
}

func NewCache(minter TokenMinter) *Cache {
	return &Cache{minter: minter, now: time.Now}
}

func (c *Cache) Bearer(ctx context.Context) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok != nil && c.now().Add(expiryMargin).Before(c.tok.ExpiresAt) {
		return c.tok, nil
	}
	tok, err := c.minter.Mint(ctx)
	if err != nil {
		return nil, err
	}
	c.tok = tok
	return tok, nil
}

// Invalidate drops the cached token so the next Bearer mints fresh. Used when
// the upstream rejects a token that should still have life left.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.tok = nil
	c.mu.Unlock()
}

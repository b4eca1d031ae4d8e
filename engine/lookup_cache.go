package engine

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"reputationkit/core"
)

// CachedReferrerLookup memoises code → owner resolutions. Referral codes
// never change owner, so positive hits are cached indefinitely; misses are
// not cached because the code may be registered later.
type CachedReferrerLookup struct {
	next  core.ReferrerLookup
	cache *lru.Cache[string, core.UserID]
}

// NewCachedReferrerLookup wraps next with an LRU of the given size.
func NewCachedReferrerLookup(next core.ReferrerLookup, size int) (*CachedReferrerLookup, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, core.UserID](size)
	if err != nil {
		return nil, err
	}
	return &CachedReferrerLookup{next: next, cache: c}, nil
}

func (c *CachedReferrerLookup) FindByReferralCode(ctx context.Context, code string) (core.UserID, bool, error) {
	code = core.NormalizeReferralCode(code)
	if id, ok := c.cache.Get(code); ok {
		return id, true, nil
	}
	id, ok, err := c.next.FindByReferralCode(ctx, code)
	if err != nil || !ok {
		return id, ok, err
	}
	c.cache.Add(code, id)
	return id, true, nil
}

// Len reports the number of cached codes.
func (c *CachedReferrerLookup) Len() int { return c.cache.Len() }

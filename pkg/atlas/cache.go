package atlas

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes resolved atlases by spec. Concurrent requests for the same
// spec share one load. Failed loads are not cached. The shared load is not
// tied to any one caller's cancellation; a canceled caller stops waiting and
// the others still get the result.
type Cache struct {
	src   Source
	group singleflight.Group

	mu      sync.RWMutex
	entries map[Spec]*Resolved
}

func NewCache(src Source) *Cache {
	return &Cache{
		src:     src,
		entries: make(map[Spec]*Resolved),
	}
}

// Resolve returns the cached atlas for spec, loading it on first use
func (c *Cache) Resolve(ctx context.Context, spec Spec) (*Resolved, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	res, ok := c.entries[spec]
	c.mu.RUnlock()
	if ok {
		return res, nil
	}

	ch := c.group.DoChan(spec.String(), func() (interface{}, error) {
		// A load may have finished between the lookup and DoChan
		c.mu.RLock()
		res, ok := c.entries[spec]
		c.mu.RUnlock()
		if ok {
			return res, nil
		}

		res, err := c.src.Resolve(context.WithoutCancel(ctx), spec)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[spec] = res
		c.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Resolved), nil
	}
}

// Len returns the number of cached atlases
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package messaging

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Deduper remembers ids for a while so redeliveries can be dropped.
type Deduper struct {
	seen *cache.Cache
}

func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduper{seen: cache.New(ttl, ttl)}
}

// First records id and reports whether this is its first sighting within the TTL.
// It is atomic, so concurrent callers with the same id see exactly one true.
func (d *Deduper) First(id string) bool {
	return d.seen.Add(id, struct{}{}, cache.DefaultExpiration) == nil
}

// Forget drops id so that a later delivery is processed again.
func (d *Deduper) Forget(id string) {
	d.seen.Delete(id)
}

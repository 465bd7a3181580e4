package app

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
)

// userCache caches GET responses per user. Each user has a generation that is
// part of every key. A successful write by the user bumps it, so nothing cached
// before the write is served after it
type userCache struct {
	store *persist.MemoryStore
	gens  sync.Map // userID -> *atomic.Uint64
}

func newUserCache() *userCache {
	return &userCache{store: persist.NewMemoryStore(time.Minute)}
}

func (u *userCache) generation(userID string) *atomic.Uint64 {
	g, _ := u.gens.LoadOrStore(userID, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// For caches responses for ttl. Must run after the JWT middleware
func (u *userCache) For(ttl time.Duration) gin.HandlerFunc {
	return cache.Cache(u.store, ttl, cache.WithCacheStrategyByRequest(func(c *gin.Context) (bool, cache.Strategy) {
		userID := c.GetString("userID")
		if userID == "" {
			return false, cache.Strategy{}
		}

		gen := strconv.FormatUint(u.generation(userID).Load(), 10)

		return true, cache.Strategy{
			CacheKey: userID + ":" + gen + ":" + c.Request.RequestURI,
		}
	}))
}

// InvalidateOnWrite drops the cached responses of a user after any of their
// non-GET requests succeeds
func (u *userCache) InvalidateOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		userID := c.GetString("userID")
		if userID == "" || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		u.generation(userID).Add(1)
	}
}

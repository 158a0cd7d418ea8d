package purge

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"riskbot/internal/metrics"
)

// Sessions holds purge requests by requester id.
// With a zero ttl requests live until the workflow ends them.
type Sessions struct {
	c *cache.Cache
}

// NewSessions creates a session store
func NewSessions(ttl time.Duration) *Sessions {
	cleanup := time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	s := &Sessions{c: cache.New(ttl, cleanup)}
	s.c.OnEvicted(func(string, interface{}) {
		metrics.ActiveSessions.Set(float64(s.c.ItemCount()))
	})
	return s
}

func sessionKey(requesterID int64) string {
	return strconv.FormatInt(requesterID, 10)
}

// Get returns the live request of a requester
func (s *Sessions) Get(requesterID int64) (*Request, bool) {
	v, ok := s.c.Get(sessionKey(requesterID))
	if !ok {
		return nil, false
	}
	return v.(*Request), true
}

// Put stores or refreshes a request
func (s *Sessions) Put(req *Request) {
	s.c.Set(sessionKey(req.RequesterID), req, cache.DefaultExpiration)
	metrics.ActiveSessions.Set(float64(s.c.ItemCount()))
}

// Delete ends a request
func (s *Sessions) Delete(requesterID int64) {
	s.c.Delete(sessionKey(requesterID))
	metrics.ActiveSessions.Set(float64(s.c.ItemCount()))
}

// Len returns the number of live requests
func (s *Sessions) Len() int {
	return s.c.ItemCount()
}

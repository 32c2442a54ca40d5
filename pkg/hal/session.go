package hal

import (
	"context"
	"sync"

	"github.com/diwise/hal-client/pkg/cache"
	"github.com/diwise/hal-client/pkg/hal/uri"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Session owns the identity cache that clients and resources are shared
// through. Resources fetched through clients of the same session are
// deduplicated by their canonical cache key.
type Session struct {
	mu    sync.Mutex
	cache *cache.Cache[*Client, Model]
}

func NewSession() *Session {
	return &Session{
		cache: cache.New[*Client, Model](),
	}
}

var defaultSession = NewSession()

// DefaultSession returns the process wide session used by the package
// level helpers.
func DefaultSession() *Session {
	return defaultSession
}

func (s *Session) Cache() *cache.Cache[*Client, Model] {
	return s.cache
}

// CreateClient returns the client for baseURL, creating it if needed.
// Clients without a base url are never cached. Options only apply when the
// client is created; a cached client is returned as is.
func (s *Session) CreateClient(baseURL string, options ...ClientOption) *Client {
	if baseURL == "" {
		return newClient(s, "", options...)
	}

	key := uri.NormalizeBase(baseURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache.Clients().Get(key); ok {
		return c
	}

	c := newClient(s, key, options...)
	s.cache.Clients().Set(key, c)

	return c
}

// CreateClient returns a client for baseURL from the default session.
func CreateClient(baseURL string, options ...ClientOption) *Client {
	return defaultSession.CreateClient(baseURL, options...)
}

// CreateResource returns the instance of t identified by u, reusing a
// cached instance whenever the identity has a cache key.
func (s *Session) CreateResource(c *Client, t *Type, u *uri.Data) Model {
	m, _ := s.createResource(c, t, u)
	return m
}

// createResource also returns the type of the cached instance when it had
// to be converted to t.
func (s *Session) createResource(c *Client, t *Type, u *uri.Data) (Model, *Type) {
	if !t.IsResource() {
		t = ResourceType
	}

	if u == nil || u.Templated() {
		return t.instantiate(c, u), nil
	}

	base := ""
	if c != nil {
		base = c.BaseURL()
	}

	key, ok := u.CacheKey(base)
	if !ok {
		return t.instantiate(c, u), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cached, found := s.cache.Resources().Get(key)
	if !found {
		m := t.instantiate(c, u)
		s.cache.Resources().Set(key, m)
		return m, nil
	}

	r := cached.HAL()
	if r.Type() == t || t == ResourceType {
		return cached, nil
	}

	m := r.Convert(t)
	s.cache.Resources().Set(key, m)

	return m, r.Type()
}

// Forget removes the cache entry of m, if it is the cached instance for
// its key.
func (s *Session) Forget(m Model) {
	key, ok := m.HAL().Key()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, found := s.cache.Resources().Get(key); found && cached.HAL() == m.HAL() {
		s.cache.Resources().Delete(key)
	}
}

func (s *Session) logUpgrade(ctx context.Context, m Model, from string) {
	logging.GetFromContext(ctx).Debug("resource type upgraded", "key", m.HAL().Handle(), "from", from, "to", m.HAL().Type().Name())
}

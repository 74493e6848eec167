package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentMesh/internal/domain/card"
	"github.com/Strob0t/AgentMesh/internal/port/cache"
)

var (
	ErrAgentExists   = errors.New("agent is already registered")
	ErrAgentNotFound = errors.New("agent not found")
)

// registeredAgent is one live registry entry.
type registeredAgent struct {
	card          card.AgentCard
	registeredAt  time.Time
	lastHeartbeat time.Time
	order         int
}

// RegistryService is the concurrent directory of live agent cards with
// heartbeat-based liveness and capability discovery. The map is guarded by
// a read-biased lock; no I/O happens under it.
type RegistryService struct {
	mu        sync.RWMutex
	agents    map[string]*registeredAgent
	nextOrder int

	staleAfter time.Duration
	gcInterval time.Duration
	now        func() time.Time

	// discoCache memoizes discovery results for hot repeated queries; any
	// registry mutation invalidates by epoch.
	discoCache cache.Cache
	cacheTTL   time.Duration
	epoch      int64
}

// NewRegistryService creates a registry. c may be nil to disable the
// discovery cache.
func NewRegistryService(staleAfter, gcInterval time.Duration, c cache.Cache, cacheTTL time.Duration) *RegistryService {
	if staleAfter <= 0 {
		staleAfter = 60 * time.Second
	}
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	return &RegistryService{
		agents:     make(map[string]*registeredAgent),
		staleAfter: staleAfter,
		gcInterval: gcInterval,
		now:        time.Now,
		discoCache: c,
		cacheTTL:   cacheTTL,
	}
}

// Register stores a card and returns the id it was stored under. The
// protocol version is pinned on the way in.
func (s *RegistryService) Register(c card.AgentCard) (string, error) {
	if c.Name == "" {
		return "", errors.New("card name is required")
	}
	c.ProtocolVersion = card.ProtocolVersion
	id := c.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrAgentExists, id)
	}
	now := s.now()
	s.agents[id] = &registeredAgent{
		card:          c,
		registeredAt:  now,
		lastHeartbeat: now,
		order:         s.nextOrder,
	}
	s.nextOrder++
	s.epoch++
	slog.Info("agent registered", "id", id, "skills", len(c.Skills))
	return id, nil
}

// Unregister removes a card.
func (s *RegistryService) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	delete(s.agents, id)
	s.epoch++
	slog.Info("agent unregistered", "id", id)
	return nil
}

// Heartbeat refreshes an agent's liveness timestamp.
func (s *RegistryService) Heartbeat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.lastHeartbeat = s.now()
	s.epoch++
	return nil
}

// Get returns a card by id regardless of liveness.
func (s *RegistryService) Get(id string) (*card.AgentCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	c := a.card
	return &c, nil
}

// List returns all live cards in registration order.
func (s *RegistryService) List() []card.AgentCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked()
}

// Discover returns live cards matching the query, in registration order.
func (s *RegistryService) Discover(ctx context.Context, q card.DiscoveryQuery) []card.AgentCard {
	if cached, ok := s.cachedDiscovery(ctx, q); ok {
		return cached
	}

	s.mu.RLock()
	live := s.liveLocked()
	s.mu.RUnlock()

	matches := make([]card.AgentCard, 0, len(live))
	for i := range live {
		if q.Matches(&live[i]) {
			matches = append(matches, live[i])
		}
	}

	s.storeDiscovery(ctx, q, matches)
	return matches
}

// StartGC launches the periodic stale-entry sweep. The returned function
// stops it.
func (s *RegistryService) StartGC(ctx context.Context) func() {
	gcCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.collect(); n > 0 {
					slog.Info("registry gc", "removed", n)
				}
			case <-gcCtx.Done():
				return
			}
		}
	}()
	return cancel
}

// collect removes entries whose heartbeat aged past the TTL.
func (s *RegistryService) collect() int {
	cutoff := s.now().Add(-s.staleAfter)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, a := range s.agents {
		if a.lastHeartbeat.Before(cutoff) || a.lastHeartbeat.Equal(cutoff) {
			delete(s.agents, id)
			removed++
		}
	}
	if removed > 0 {
		s.epoch++
	}
	return removed
}

// liveLocked returns live cards in registration order. Caller holds a lock.
func (s *RegistryService) liveLocked() []card.AgentCard {
	cutoff := s.now().Add(-s.staleAfter)

	live := make([]*registeredAgent, 0, len(s.agents))
	for _, a := range s.agents {
		if a.lastHeartbeat.After(cutoff) {
			live = append(live, a)
		}
	}
	// Insertion sort by registration order; registries stay small.
	for i := 1; i < len(live); i++ {
		for j := i; j > 0 && live[j].order < live[j-1].order; j-- {
			live[j], live[j-1] = live[j-1], live[j]
		}
	}
	cards := make([]card.AgentCard, len(live))
	for i, a := range live {
		cards[i] = a.card
	}
	return cards
}

// cachedDiscovery checks the discovery cache for this query at the current
// epoch.
func (s *RegistryService) cachedDiscovery(ctx context.Context, q card.DiscoveryQuery) ([]card.AgentCard, bool) {
	if s.discoCache == nil {
		return nil, false
	}
	key, ok := s.discoveryKey(q)
	if !ok {
		return nil, false
	}
	data, found, err := s.discoCache.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	var cards []card.AgentCard
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, false
	}
	return cards, true
}

// storeDiscovery writes a discovery result into the cache.
func (s *RegistryService) storeDiscovery(ctx context.Context, q card.DiscoveryQuery, cards []card.AgentCard) {
	if s.discoCache == nil {
		return
	}
	key, ok := s.discoveryKey(q)
	if !ok {
		return
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return
	}
	ttl := s.cacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	_ = s.discoCache.Set(ctx, key, data, ttl)
}

// discoveryKey builds the cache key: query shape plus mutation epoch.
func (s *RegistryService) discoveryKey(q card.DiscoveryQuery) (string, bool) {
	qj, err := json.Marshal(q)
	if err != nil {
		return "", false
	}
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()
	return fmt.Sprintf("discover:%d:%s", epoch, qj), true
}

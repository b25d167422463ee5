package coord

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Memory is a process-local Service. It is correct for a single instance
// only.
type Memory struct {
	mu   sync.Mutex
	opts Options
	now  func() time.Time
	keys map[string]entry
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts: opts.withDefaults(),
		now:  time.Now,
		keys: map[string]entry{},
	}
}

// SetClock replaces the time source. Tests use it to expire keys.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// get must be called with mu held.
func (m *Memory) get(key string) (string, bool) {
	e, ok := m.keys[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.keys, key)
		return "", false
	}
	return e.value, true
}

func (m *Memory) setNX(key, value string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.get(key); held {
		return false
	}
	m.keys[key] = entry{value: value, expires: m.now().Add(ttl)}
	return true
}

func (m *Memory) acquire(key string, ttl time.Duration) (Lock, bool) {
	token := uuid.NewString()
	if !m.setNX(key, token, ttl) {
		return Lock{}, false
	}
	return Lock{Key: key, Token: token}, true
}

func (m *Memory) release(l Lock) {
	if l.Key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.get(l.Key); ok && v == l.Token {
		delete(m.keys, l.Key)
	}
}

func (m *Memory) AcquireLotLock(_ context.Context, lotID string) (Lock, bool, error) {
	l, ok := m.acquire(lotLockKey(lotID), m.opts.LotLockTTL)
	return l, ok, nil
}

func (m *Memory) ReleaseLotLock(_ context.Context, l Lock) error {
	m.release(l)
	return nil
}

func (m *Memory) AcquireAuctionLock(_ context.Context, auctionID string) (Lock, bool, error) {
	l, ok := m.acquire(auctionLockKey(auctionID), m.opts.AuctionLockTTL)
	return l, ok, nil
}

func (m *Memory) ReleaseAuctionLock(_ context.Context, l Lock) error {
	m.release(l)
	return nil
}

func (m *Memory) TryBidCooldown(_ context.Context, bidderID, lotID string) (bool, error) {
	return m.setNX(cooldownKey(bidderID, lotID), "1", m.opts.BidCooldown), nil
}

func (m *Memory) SetActiveLot(_ context.Context, auctionID, lotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lotID == "" {
		delete(m.keys, activeLotKey(auctionID))
		return nil
	}
	m.keys[activeLotKey(auctionID)] = entry{value: lotID}
	return nil
}

func (m *Memory) GetActiveLot(_ context.Context, auctionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, _ := m.get(activeLotKey(auctionID))
	return v, nil
}

func (m *Memory) SetRunState(_ context.Context, auctionID string, s engine.AuctionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[runStateKey(auctionID)] = entry{value: string(s)}
	return nil
}

func (m *Memory) GetRunState(_ context.Context, auctionID string) (engine.AuctionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, _ := m.get(runStateKey(auctionID))
	return engine.AuctionStatus(v), nil
}

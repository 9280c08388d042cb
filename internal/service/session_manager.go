package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"readingsurvey/internal/cache"
	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
)

// MsgSessionView is the push message type carrying a model.SessionView
const MsgSessionView = "session_view"

type liveTab struct {
	sm       *SessionMachine
	lastSeen time.Time
}

// SessionManager keeps one live SessionMachine per tab. A machine is only
// handed out after Start has restored it.
type SessionManager struct {
	mu       sync.Mutex
	machines map[string]*liveTab
	starting singleflight.Group
	now      func() time.Time

	settings    model.SurveySettings
	catalog     CatalogSource
	alloc       Allocator
	store       cache.SessionStore
	tokens      *TabTokenService
	broadcaster Broadcaster
	log         *logger.Logger
}

// NewSessionManager creates a manager. broadcaster may be nil.
func NewSessionManager(settings model.SurveySettings, catalog CatalogSource, alloc Allocator, store cache.SessionStore, tokens *TabTokenService, broadcaster Broadcaster, log *logger.Logger) *SessionManager {
	return &SessionManager{
		machines:    make(map[string]*liveTab),
		now:         time.Now,
		settings:    settings,
		catalog:     catalog,
		alloc:       alloc,
		store:       store,
		tokens:      tokens,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Tokens exposes the token service used to authenticate tabs
func (m *SessionManager) Tokens() *TabTokenService {
	return m.tokens
}

// Open creates and starts a machine for a fresh tab
func (m *SessionManager) Open(ctx context.Context) (string, string, *SessionMachine, error) {
	tabID, token, err := m.tokens.NewTab()
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to issue tab token: %w", err)
	}

	sm := m.build(tabID)
	m.log.Info("tab opened", "tab_id", tabID)
	if err := sm.Start(ctx); err != nil {
		// a fresh tab has nothing to restore; this is a store failure
		m.log.Warn("tab start failed", "tab_id", tabID, "error", err)
	}
	m.publish(tabID, sm)
	return tabID, token, sm, nil
}

// Get returns the live machine for tabID, rebuilding it from the store when
// the process no longer holds one. Concurrent callers for the same tab share
// one rebuild.
func (m *SessionManager) Get(ctx context.Context, tabID string) (*SessionMachine, error) {
	if sm, ok := m.touch(tabID); ok {
		return sm, nil
	}

	v, err, _ := m.starting.Do(tabID, func() (interface{}, error) {
		if sm, ok := m.touch(tabID); ok {
			return sm, nil
		}
		sm := m.build(tabID)
		m.log.Info("tab recovered from store", "tab_id", tabID)
		if err := sm.Start(ctx); err != nil {
			// the error stays in the machine's view; the tab is still usable
			m.log.Warn("tab recovery incomplete", "tab_id", tabID, "error", err)
		}
		m.publish(tabID, sm)
		return sm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionMachine), nil
}

func (m *SessionManager) touch(tabID string) (*SessionMachine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lt, ok := m.machines[tabID]
	if !ok {
		return nil, false
	}
	lt.lastSeen = m.now()
	return lt.sm, true
}

func (m *SessionManager) publish(tabID string, sm *SessionMachine) {
	m.mu.Lock()
	m.machines[tabID] = &liveTab{sm: sm, lastSeen: m.now()}
	m.mu.Unlock()
}

// Close drops the live machine and its push connections. Stored state is kept
// so a later Get recovers it.
func (m *SessionManager) Close(tabID string) {
	m.mu.Lock()
	delete(m.machines, tabID)
	m.mu.Unlock()

	if m.broadcaster != nil {
		m.broadcaster.DisconnectTab(tabID)
	}
	m.log.Info("tab closed", "tab_id", tabID)
}

// Evict closes every tab not requested within idle and returns how many
// were closed. Their stored state is kept.
func (m *SessionManager) Evict(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	var stale []string
	m.mu.Lock()
	for tabID, lt := range m.machines {
		if lt.lastSeen.Before(cutoff) && !lt.sm.inFlight() {
			stale = append(stale, tabID)
		}
	}
	m.mu.Unlock()

	for _, tabID := range stale {
		m.Close(tabID)
	}
	if len(stale) > 0 {
		m.log.Info("idle tabs evicted", "count", len(stale), "live", m.Live())
	}
	return len(stale)
}

// RunEviction calls Evict every interval until ctx is done
func (m *SessionManager) RunEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict(idle)
		}
	}
}

// Live is the number of machines held in memory
func (m *SessionManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.machines)
}

func (m *SessionManager) build(tabID string) *SessionMachine {
	cp := NewCheckpointer(m.store, tabID, m.settings.TargetCount)
	sm := NewSessionMachine(tabID, m.settings, m.catalog, m.alloc, cp, m.log)
	if m.broadcaster != nil {
		b := m.broadcaster
		sm.OnChange(func(v model.SessionView) {
			b.BroadcastToTab(tabID, MsgSessionView, v)
		})
	}
	return sm
}

package ledger

import (
	"sync"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// DefaultMinAutoSaveInterval is the floor between two automatic saves of the
// same document.
const DefaultMinAutoSaveInterval = 5 * time.Second

type gateEntry struct {
	lastSaveAt time.Time
	lastHash   string
}

// SessionState is the process-wide mutable state shared by the save gate and
// the version store: the per-docKey save cache and the sticky
// remote-unavailable flag. It is constructed once at startup and injected
// into both, so tests can run isolated instances instead of fighting
// package globals.
type SessionState struct {
	mu         sync.Mutex
	entries    map[string]gateEntry
	remoteDown bool

	now func() time.Time
}

func NewSessionState() *SessionState {
	return &SessionState{
		entries: make(map[string]gateEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *SessionState) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RemoteDown reports whether the remote store has been flagged unavailable
// for the remainder of the process lifetime.
func (s *SessionState) RemoteDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDown
}

func (s *SessionState) MarkRemoteDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteDown = true
}

// ResetRemote clears the sticky flag. Test hook.
func (s *SessionState) ResetRemote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteDown = false
}

func (s *SessionState) clockNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

func (s *SessionState) entry(docKey string) (gateEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[docKey]
	return e, ok
}

// SaveGate decides whether a save attempt is worth persisting. The cache it
// consults is advisory: the store re-checks content-hash equality against
// the most recent remote version before committing an automatic save.
type SaveGate struct {
	state       *SessionState
	minInterval time.Duration
}

type SaveOptions struct {
	Force      bool
	ChangeType types.ChangeType
}

func NewSaveGate(state *SessionState, minInterval time.Duration) *SaveGate {
	if minInterval <= 0 {
		minInterval = DefaultMinAutoSaveInterval
	}
	return &SaveGate{state: state, minInterval: minInterval}
}

// ShouldSave applies the gate rules in order; the first match wins:
// force, manual/structural change, rate limit, unchanged hash, save.
func (g *SaveGate) ShouldSave(docKey, content string, opts SaveOptions) bool {
	if opts.Force {
		return true
	}
	if opts.ChangeType == types.ChangeTypeManual || opts.ChangeType == types.ChangeTypeStructural {
		return true
	}
	e, ok := g.state.entry(docKey)
	if !ok {
		return true
	}
	if !e.lastSaveAt.IsZero() && g.state.clockNow().Sub(e.lastSaveAt) < g.minInterval {
		return false
	}
	if e.lastHash != "" && e.lastHash == Fingerprint(content) {
		return false
	}
	return true
}

// Record updates the cache after a save actually succeeded.
func (g *SaveGate) Record(docKey, contentHash string) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	g.state.entries[docKey] = gateEntry{
		lastSaveAt: g.state.now(),
		lastHash:   contentHash,
	}
}

// Seed sets the baseline hash for a freshly opened document without marking
// a save, so the first change after open is compared against known content
// instead of being treated as an unconditional save. The zero save time
// keeps the rate-limit rule out of the way.
func (g *SaveGate) Seed(docKey, contentHash string) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	if _, exists := g.state.entries[docKey]; exists {
		return
	}
	g.state.entries[docKey] = gateEntry{lastHash: contentHash}
}

// Forget drops the cache entry for a docKey. Called on session teardown so
// a later open of the same document starts clean.
func (g *SaveGate) Forget(docKey string) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	delete(g.state.entries, docKey)
}

// LastHash returns the cached last-saved (or seeded) hash for a docKey.
func (g *SaveGate) LastHash(docKey string) (string, bool) {
	e, ok := g.state.entry(docKey)
	if !ok {
		return "", false
	}
	return e.lastHash, e.lastHash != ""
}

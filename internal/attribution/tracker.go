// Package attribution implements last-click affiliate attribution with a
// rolling expiry window. The tracker is client-resident, single-threaded
// state: explicit lifecycle (init on first click, mutate on new-code click,
// teardown on expiry) instead of ambient globals.
package attribution

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Window is the rolling attribution window for a stored code.
const Window = 90 * 24 * time.Hour

// State is the persisted attribution snapshot.
type State struct {
	Code      string    `json:"code"`
	FirstSeen time.Time `json:"first_seen"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists the single attribution state slot.
type Store interface {
	Load() (State, bool)
	Save(State)
	Clear()
}

// ClickRecorder receives the click event for every incoming code,
// independent of novelty. domain.Repository satisfies it.
type ClickRecorder interface {
	RecordAttributionClick(ctx context.Context, code string, at time.Time) error
}

type Tracker struct {
	store  Store
	clicks ClickRecorder
	window time.Duration

	// Now is replaceable in tests.
	Now func() time.Time
}

func New(store Store, clicks ClickRecorder) *Tracker {
	return &Tracker{store: store, clicks: clicks, window: Window, Now: time.Now}
}

// Sweep clears expired attribution state. Runs on every page load.
func (t *Tracker) Sweep() {
	st, ok := t.store.Load()
	if ok && !t.Now().Before(st.ExpiresAt) {
		t.store.Clear()
	}
}

// RecordClick handles an incoming referral code.
//
// The click event is always recorded, fire-and-forget, so the network call
// never gates the synchronous overwrite/expiry decision. A new code
// overwrites the stored one and resets the window; a repeat of the stored
// code leaves the original countdown running.
func (t *Tracker) RecordClick(code string) {
	t.Sweep()
	if code == "" {
		return
	}
	now := t.Now()

	if t.clicks != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.clicks.RecordAttributionClick(ctx, code, now); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("attribution click not recorded")
			}
		}()
	}

	st, ok := t.store.Load()
	if ok && st.Code == code {
		return
	}
	t.store.Save(State{Code: code, FirstSeen: now, ExpiresAt: now.Add(t.window)})
}

// ActiveCode returns the stored code if it has not expired. It never mutates
// the stored expiry.
func (t *Tracker) ActiveCode() (string, bool) {
	st, ok := t.store.Load()
	if !ok || !t.Now().Before(st.ExpiresAt) {
		return "", false
	}
	return st.Code, true
}

// Clear drops all stored attribution state.
func (t *Tracker) Clear() {
	t.store.Clear()
}

// MemoryStore keeps the state in process memory. The tracker is
// single-threaded, so no locking is needed.
type MemoryStore struct {
	st  State
	set bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (State, bool) { return m.st, m.set }
func (m *MemoryStore) Save(s State)        { m.st, m.set = s, true }
func (m *MemoryStore) Clear()              { m.st, m.set = State{}, false }

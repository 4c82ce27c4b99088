// Package quota tracks the remaining call budget across a rotating pool of
// API credentials.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// CallKind names a metered API operation. Each kind has a fixed unit cost.
type CallKind string

const (
	CallVideosList        CallKind = "videos.list"
	CallChannelsList      CallKind = "channels.list"
	CallPlaylistItemsList CallKind = "playlistItems.list"
	CallSearchList        CallKind = "search.list"
)

// DefaultCostTable returns the per-call quota costs charged by the YouTube
// Data API.
func DefaultCostTable() map[CallKind]int {
	return map[CallKind]int{
		CallVideosList:        1,
		CallChannelsList:      1,
		CallPlaylistItemsList: 1,
		CallSearchList:        100,
	}
}

// CredentialSpec describes one API key and its daily allowance.
type CredentialSpec struct {
	Name       string
	Key        string
	DailyQuota int
}

type credential struct {
	name       string
	key        string
	dailyQuota int
	remaining  int
	reserved   int
	lastReset  time.Time
}

func (c *credential) available() int {
	return c.remaining - c.reserved
}

// Permit is a reservation against one credential. The credential's counter is
// decremented only on Commit, so a failed call can Release without loss.
type Permit struct {
	Kind CallKind
	Cost int

	cred    *credential
	settled bool
}

// APIKey returns the key of the credential backing this permit.
func (p *Permit) APIKey() string {
	return p.cred.key
}

// CredentialName returns the name of the credential backing this permit.
func (p *Permit) CredentialName() string {
	return p.cred.name
}

// Ledger is the single shared budget tracker. Reserve is atomic relative to
// concurrent callers: no two callers can overdraw the same credential.
type Ledger struct {
	mu         sync.Mutex
	creds      []*credential
	active     int
	costs      map[CallKind]int
	resetCycle time.Duration
	now        func() time.Time
}

// NewLedger builds a ledger over the given credential pool. At least one
// credential is required; a ledgerless collector cannot start.
func NewLedger(specs []CredentialSpec, costs map[CallKind]int) (*Ledger, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("quota ledger requires at least one credential")
	}
	if costs == nil {
		costs = DefaultCostTable()
	}

	now := time.Now()
	creds := make([]*credential, 0, len(specs))
	for _, spec := range specs {
		if spec.Key == "" {
			return nil, fmt.Errorf("credential %q has an empty API key", spec.Name)
		}
		if spec.DailyQuota <= 0 {
			return nil, fmt.Errorf("credential %q has a non-positive daily quota", spec.Name)
		}
		creds = append(creds, &credential{
			name:       spec.Name,
			key:        spec.Key,
			dailyQuota: spec.DailyQuota,
			remaining:  spec.DailyQuota,
			lastReset:  now,
		})
	}

	return &Ledger{
		creds:      creds,
		costs:      costs,
		resetCycle: 24 * time.Hour,
		now:        time.Now,
	}, nil
}

// Cost reports the unit cost charged for a call kind.
func (l *Ledger) Cost(kind CallKind) int {
	if cost, ok := l.costs[kind]; ok {
		return cost
	}
	return 1
}

// Reserve holds budget for one call. It walks the pool round-robin starting
// from the active credential and returns model.ErrQuotaExhausted only when
// every credential is depleted.
func (l *Ledger) Reserve(kind CallKind) (*Permit, error) {
	cost := l.Cost(kind)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetExpiredLocked()

	for i := 0; i < len(l.creds); i++ {
		idx := (l.active + i) % len(l.creds)
		cred := l.creds[idx]
		if cred.available() >= cost {
			cred.reserved += cost
			if idx != l.active {
				log.Info().
					Str("credential", cred.name).
					Msg("Rotated to next credential in pool")
				l.active = idx
			}
			return &Permit{Kind: kind, Cost: cost, cred: cred}, nil
		}
	}

	return nil, fmt.Errorf("reserve %d units for %s: %w", cost, kind, model.ErrQuotaExhausted)
}

// Commit settles a permit after a successful call, decrementing the
// credential's remaining budget.
func (l *Ledger) Commit(p *Permit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p == nil || p.settled {
		return
	}
	p.cred.reserved -= p.Cost
	p.cred.remaining -= p.Cost
	if p.cred.remaining < 0 {
		p.cred.remaining = 0
	}
	p.settled = true
}

// Release returns a permit's reserved budget after a failed call.
func (l *Ledger) Release(p *Permit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p == nil || p.settled {
		return
	}
	p.cred.reserved -= p.Cost
	p.settled = true
}

// Drain settles a permit and zeroes its credential's remaining budget. Used
// when the remote service reports quota exhaustion that the local counter did
// not predict.
func (l *Ledger) Drain(p *Permit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p == nil {
		return
	}
	if !p.settled {
		p.cred.reserved -= p.Cost
		p.settled = true
	}
	log.Warn().
		Str("credential", p.cred.name).
		Int("local_remaining", p.cred.remaining).
		Msg("Remote quota rejection; draining credential")
	p.cred.remaining = 0
}

// ForceRotate advances the active credential without reserving anything.
func (l *Ledger) ForceRotate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = (l.active + 1) % len(l.creds)
}

// ResetIfExpired restores the daily allowance of any credential whose reset
// cycle has elapsed.
func (l *Ledger) ResetIfExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetExpiredLocked()
}

func (l *Ledger) resetExpiredLocked() {
	now := l.now()
	for _, cred := range l.creds {
		if now.Sub(cred.lastReset) >= l.resetCycle {
			log.Info().
				Str("credential", cred.name).
				Int("daily_quota", cred.dailyQuota).
				Msg("Daily quota reset")
			cred.remaining = cred.dailyQuota
			cred.lastReset = now
		}
	}
}

// Remaining reports the uncommitted budget per credential.
func (l *Ledger) Remaining() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(l.creds))
	for _, cred := range l.creds {
		out[cred.name] = cred.available()
	}
	return out
}

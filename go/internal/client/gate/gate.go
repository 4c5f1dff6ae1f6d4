// Package gate applies lot notifications in version order on the client.
//
// Broadcast delivery is at-least-once and unordered, so every notification,
// whether pushed over the websocket or fetched by polling, goes through a
// Gate. A Gate applies a notification only when its version is above the
// highest version already applied for that lot.
package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// LotView is the client's cached copy of server-confirmed lot state.
type LotView struct {
	LotID   uuid.UUID
	Version int64
	models.LotState
	AppliedAt time.Time
}

// Clock stamps applied views. The watcher passes its reconciler so
// AppliedAt is in server time.
type Clock interface {
	Now() time.Time
}

type Gate struct {
	mu    sync.RWMutex
	clock Clock
	views map[uuid.UUID]LotView
	stale int64
}

func New(clock Clock) *Gate {
	return &Gate{
		clock: clock,
		views: make(map[uuid.UUID]LotView),
	}
}

// Offer applies ev if it is newer than anything applied for its lot.
func (g *Gate) Offer(ev models.LotEvent) bool {
	if !ev.Type.Mutating() {
		return false
	}
	return g.apply(ev.LotID, ev.Version, ev.State, string(ev.Type))
}

// Reset seeds or refreshes a lot from a polled snapshot. Snapshots are
// versioned like events and are gated the same way.
func (g *Gate) Reset(snap models.LotSnapshot) bool {
	return g.apply(snap.LotID, snap.Version, snap.LotState, "snapshot")
}

func (g *Gate) apply(lotID uuid.UUID, version int64, state models.LotState, source string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.views[lotID]
	if ok && version <= current.Version {
		g.stale++
		log.Debug().
			Str("lot_id", lotID.String()).
			Int64("version", version).
			Int64("applied_version", current.Version).
			Str("source", source).
			Msg("discarding stale lot update")
		return false
	}
	g.views[lotID] = LotView{
		LotID:     lotID,
		Version:   version,
		LotState:  state,
		AppliedAt: g.clock.Now(),
	}
	return true
}

func (g *Gate) View(lotID uuid.UUID) (LotView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.views[lotID]
	return v, ok
}

// Highest returns the highest applied version, zero when nothing was applied.
func (g *Gate) Highest(lotID uuid.UUID) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.views[lotID].Version
}

// Discarded counts updates dropped as stale.
func (g *Gate) Discarded() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stale
}

func (g *Gate) Forget(lotID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.views, lotID)
}

// Package peers tracks the peer lending markets whose pool-share tokens are
// accepted as collateral, exposing each market's exchange-rate inputs.
package peers

import (
	"strings"
	"sync"

	"lendex/market"
)

// Registry is a mutable market-ID keyed table of peer views. Satisfies
// market.PeerSource.
type Registry struct {
	mu    sync.RWMutex
	views map[string]market.PeerView
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string]market.PeerView)}
}

// Register binds a peer view under the given market identifier. A nil view
// removes the binding.
func (r *Registry) Register(marketID string, view market.PeerView) {
	marketID = strings.TrimSpace(marketID)
	if r == nil || marketID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if view == nil {
		delete(r.views, marketID)
		return
	}
	r.views[marketID] = view
}

// Peer resolves the view registered for the market identifier.
func (r *Registry) Peer(marketID string) (market.PeerView, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.views[strings.TrimSpace(marketID)]
	return view, ok
}

// FixedView is a static peer exchange-rate snapshot, used when the peer
// market runs out of process and its aggregates are mirrored via config.
type FixedView struct {
	Shares   uint64
	Deposits uint64
}

// GetCirculatingShares reports the mirrored share supply.
func (v FixedView) GetCirculatingShares() uint64 { return v.Shares }

// GetTotalDeposits reports the mirrored deposit total.
func (v FixedView) GetTotalDeposits() uint64 { return v.Deposits }

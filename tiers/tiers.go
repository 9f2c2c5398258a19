// Package tiers supplies the reputation tier lookup used to discount
// origination fees. Accounts without an assignment are tier 0.
package tiers

import (
	"strings"
	"sync"
)

// Static is a mutable in-memory tier assignment table. Satisfies
// market.TierSource.
type Static struct {
	mu       sync.RWMutex
	accounts map[string]uint8
}

// NewStatic constructs a table seeded with the supplied assignments.
func NewStatic(seed map[string]uint8) *Static {
	accounts := make(map[string]uint8, len(seed))
	for account, tier := range seed {
		account = strings.TrimSpace(account)
		if account == "" {
			continue
		}
		accounts[account] = tier
	}
	return &Static{accounts: accounts}
}

// GetTier reports the account's tier, 0 when unassigned.
func (s *Static) GetTier(account string) uint8 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[strings.TrimSpace(account)]
}

// SetTier assigns a tier to an account.
func (s *Static) SetTier(account string, tier uint8) {
	account = strings.TrimSpace(account)
	if s == nil || account == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] = tier
}

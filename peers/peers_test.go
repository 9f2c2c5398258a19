package peers

import "testing"

func TestRegistryRoundTrip(t *testing.T) {
	registry := NewRegistry()

	if _, ok := registry.Peer("alpha"); ok {
		t.Fatal("fresh registry should resolve nothing")
	}

	registry.Register("alpha", FixedView{Shares: 500_000, Deposits: 1_000_000})
	view, ok := registry.Peer("alpha")
	if !ok {
		t.Fatal("registered peer not resolved")
	}
	if view.GetCirculatingShares() != 500_000 || view.GetTotalDeposits() != 1_000_000 {
		t.Fatalf("view = (%d, %d), want (500000, 1000000)",
			view.GetCirculatingShares(), view.GetTotalDeposits())
	}

	// Identifiers are whitespace trimmed on both sides.
	if _, ok := registry.Peer(" alpha "); !ok {
		t.Fatal("padded lookup failed")
	}

	// A nil view removes the binding.
	registry.Register("alpha", nil)
	if _, ok := registry.Peer("alpha"); ok {
		t.Fatal("binding survived removal")
	}
}

func TestRegisterIgnoresBlankID(t *testing.T) {
	registry := NewRegistry()
	registry.Register("  ", FixedView{Shares: 1, Deposits: 1})
	if _, ok := registry.Peer(""); ok {
		t.Fatal("blank identifier should not register")
	}
}

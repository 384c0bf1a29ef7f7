package loom

import "testing"

const flagCluster = "🏳️‍🌈" // multi-codepoint ZWJ sequence

func TestGraphemePool(t *testing.T) {
	t.Run("InternLookup", func(t *testing.T) {
		p := NewGraphemePool()
		id := p.Intern(flagCluster)
		if id == 0 {
			t.Fatal("intern failed")
		}
		cluster, width := p.Lookup(id)
		if cluster != flagCluster {
			t.Errorf("Lookup = %q, want %q", cluster, flagCluster)
		}
		if width != id.Width() {
			t.Errorf("width mismatch: lookup %d, id %d", width, id.Width())
		}
		if id.Width() < 1 {
			t.Error("pool widths must be at least 1")
		}
	})

	t.Run("InternDedup", func(t *testing.T) {
		p := NewGraphemePool()
		a := p.Intern(flagCluster)
		b := p.Intern(flagCluster)
		if a != b {
			t.Errorf("same cluster interned twice: %v vs %v", a, b)
		}
		if p.Live() != 1 {
			t.Errorf("Live = %d, want 1", p.Live())
		}
	})

	t.Run("Accounting", func(t *testing.T) {
		p := NewGraphemePool()
		start := p.Live()
		ids := make([]GraphemeID, 0, 10)
		clusters := []string{"é́", "👩‍👩‍👧", "n̄", flagCluster}
		for _, c := range clusters {
			ids = append(ids, p.Intern(c))
			ids = append(ids, p.Intern(c))
		}
		for _, id := range ids {
			p.Release(id)
		}
		if p.Live() != start {
			t.Errorf("balanced intern/release left Live = %d, want %d", p.Live(), start)
		}
	})

	t.Run("GCReclaims", func(t *testing.T) {
		p := NewGraphemePool()
		id := p.Intern(flagCluster)
		p.Release(id)
		p.GC()
		if cluster, _ := p.Lookup(id); cluster != "" {
			t.Error("orphaned slot survived GC")
		}
		// The freed slot index is reused.
		other := p.Intern("👋🏽")
		if other.Index() != id.Index() {
			t.Errorf("free slot not reused: got %d, want %d", other.Index(), id.Index())
		}
	})

	t.Run("GCKeepsLive", func(t *testing.T) {
		p := NewGraphemePool()
		id := p.Intern(flagCluster)
		p.GC()
		if cluster, _ := p.Lookup(id); cluster != flagCluster {
			t.Error("GC reclaimed a referenced slot")
		}
	})

	t.Run("ReleaseStaleID", func(t *testing.T) {
		p := NewGraphemePool()
		p.Release(makeGraphemeID(2, 99)) // out of range: no-op
		id := p.Intern(flagCluster)
		p.Release(id)
		p.Release(id) // double release: no-op at zero
		if p.Live() != 0 {
			t.Errorf("Live = %d after double release", p.Live())
		}
	})

	t.Run("ClusterWidths", func(t *testing.T) {
		tests := []struct {
			cluster string
			want    int
		}{
			{"a", 1},
			{"語", 2},
			{"👋", 2},
			{"é", 1}, // e + combining acute
		}
		for _, tt := range tests {
			if got := clusterWidth(tt.cluster); got != tt.want {
				t.Errorf("clusterWidth(%q) = %d, want %d", tt.cluster, got, tt.want)
			}
		}
	})
}

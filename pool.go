package loom

import (
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// GraphemeID references a pool slot. The top seven bits carry the cluster's
// display width and the low 25 bits the slot index, so a cell holding a
// pool reference knows its width without a pool lookup.
type GraphemeID uint32

const (
	graphemeIndexBits = 25
	graphemeIndexMask = 1<<graphemeIndexBits - 1
	graphemeMaxWidth  = 127

	// graphemeIDMin is the smallest valid id. Widths are clamped to >= 1,
	// which keeps every id above the Unicode scalar range and the tail
	// sentinel.
	graphemeIDMin = 1 << graphemeIndexBits
)

// Width returns the cluster's display width encoded in the id.
func (id GraphemeID) Width() int {
	return int(id >> graphemeIndexBits)
}

// Index returns the slot index encoded in the id.
func (id GraphemeID) Index() int {
	return int(id & graphemeIndexMask)
}

func makeGraphemeID(width, index int) GraphemeID {
	return GraphemeID(width)<<graphemeIndexBits | GraphemeID(index)
}

// graphemeSlot is one interned cluster.
type graphemeSlot struct {
	cluster string
	width   uint8
	refs    int32
}

// GraphemePool interns multi-codepoint grapheme clusters that do not fit in
// a cell's inline four bytes. Slots are reference counted; Release leaves a
// zero-ref slot in place so a re-intern of the same cluster is cheap, and
// GC sweeps orphans back onto the free list with bounded work per call.
type GraphemePool struct {
	slots []graphemeSlot
	index map[string]int
	free  []int
	live  int // slots with refs > 0
	sweep int // GC cursor
}

// NewGraphemePool creates an empty pool.
func NewGraphemePool() *GraphemePool {
	return &GraphemePool{index: make(map[string]int)}
}

// Intern stores the cluster (or finds it) and increments its refcount.
func (p *GraphemePool) Intern(cluster string) GraphemeID {
	if i, ok := p.index[cluster]; ok {
		s := &p.slots[i]
		if s.refs == 0 {
			p.live++
		}
		s.refs++
		return makeGraphemeID(int(s.width), i)
	}

	w := clusterWidth(cluster)

	i, ok := p.alloc()
	if !ok {
		return 0
	}

	p.slots[i] = graphemeSlot{cluster: cluster, width: uint8(w), refs: 1}
	p.index[cluster] = i
	p.live++
	return makeGraphemeID(w, i)
}

// alloc finds a free slot index: free list first, then growth, then a GC
// sweep when the 25-bit index space is exhausted.
func (p *GraphemePool) alloc() (int, bool) {
	if n := len(p.free); n > 0 {
		i := p.free[n-1]
		p.free = p.free[:n-1]
		return i, true
	}
	if len(p.slots) < graphemeIndexMask {
		p.slots = append(p.slots, graphemeSlot{})
		return len(p.slots) - 1, true
	}
	p.GC()
	if n := len(p.free); n > 0 {
		i := p.free[n-1]
		p.free = p.free[:n-1]
		return i, true
	}
	return 0, false
}

// Release decrements the refcount. The slot becomes reclaimable at zero.
func (p *GraphemePool) Release(id GraphemeID) {
	i := id.Index()
	if i < 0 || i >= len(p.slots) {
		return
	}
	s := &p.slots[i]
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		p.live--
	}
}

// Lookup returns the cluster bytes and display width for an id. A stale or
// out-of-range id yields an empty cluster.
func (p *GraphemePool) Lookup(id GraphemeID) (string, int) {
	i := id.Index()
	if i < 0 || i >= len(p.slots) || p.slots[i].cluster == "" {
		return "", 0
	}
	return p.slots[i].cluster, int(p.slots[i].width)
}

// Live returns the number of slots currently referenced.
func (p *GraphemePool) Live() int {
	return p.live
}

// gcBatch bounds the work done by a single GC call.
const gcBatch = 256

// GC reclaims orphaned slots. Each call scans at most gcBatch slots,
// resuming where the previous call stopped.
func (p *GraphemePool) GC() {
	n := len(p.slots)
	if n == 0 {
		return
	}
	limit := gcBatch
	if limit > n {
		limit = n
	}
	for scanned := 0; scanned < limit; scanned++ {
		if p.sweep >= n {
			p.sweep = 0
		}
		s := &p.slots[p.sweep]
		if s.refs == 0 && s.cluster != "" {
			delete(p.index, s.cluster)
			*s = graphemeSlot{}
			p.free = append(p.free, p.sweep)
		}
		p.sweep++
	}
}

// clusterWidth computes the display width of a grapheme cluster. ASCII is 1,
// most CJK and wide emoji are 2, combining marks contribute 0 and ride on
// their base. Ambiguous-width characters default to 1 (uniseg's default
// setting). The result is clamped to [1, 127] so pool ids stay disjoint
// from scalar cell content.
func clusterWidth(cluster string) int {
	w := 0
	state := -1
	rest := cluster
	for len(rest) > 0 {
		var cw int
		_, rest, cw, state = uniseg.FirstGraphemeClusterInString(rest, state)
		w += cw
	}
	if w == 0 {
		// A bare combining cluster still occupies its base cell.
		w = 1
	}
	if w > graphemeMaxWidth {
		w = graphemeMaxWidth
	}
	return w
}

// scalarWidth is the width policy for single scalars placed standalone.
func scalarWidth(r rune) int {
	w := runewidth.RuneWidth(r)
	if w < 1 {
		w = 1
	}
	return w
}

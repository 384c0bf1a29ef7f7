package loom

// Rect is a rectangle in cell coordinates.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Intersect returns the overlap of two rectangles.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.W, o.X+o.W)
	y1 := min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Buffer is a row-major grid of cells with dirty-row tracking and scissor
// and opacity stacks. Dimensions are fixed at creation; the runtime
// allocates fresh buffers on resize.
type Buffer struct {
	cells  []Cell
	width  int
	height int

	// Row-level dirty tracking for the diff fast path.
	dirtyRows []bool
	allDirty  bool

	// Scissor stack: effective clip is the intersection of all pushed
	// rectangles. Writes outside the clip are dropped; reads are unclipped.
	scissors []Rect
	clip     Rect

	// Opacity stack: effective opacity is the product of all pushed values.
	opacities []float64
	opacity   float64
}

// emptyRowCache is a pre-filled row of empty cells for fast clearing via copy().
var emptyRowCache []Cell

func emptyRow(width int) []Cell {
	if len(emptyRowCache) < width {
		emptyRowCache = make([]Cell, width)
		empty := EmptyCell()
		for i := range emptyRowCache {
			emptyRowCache[i] = empty
		}
	}
	return emptyRowCache[:width]
}

// NewBuffer creates a buffer of the given dimensions, zeroed to spaces with
// default style and no link. All rows start dirty so a first flush paints
// everything.
func NewBuffer(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	b := &Buffer{
		cells:     make([]Cell, width*height),
		width:     width,
		height:    height,
		dirtyRows: make([]bool, height),
		allDirty:  true,
		clip:      Rect{W: width, H: height},
		opacity:   1,
	}
	empty := EmptyCell()
	for i := range b.cells {
		b.cells[i] = empty
	}
	return b
}

// Width returns the buffer width.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height.
func (b *Buffer) Height() int { return b.height }

// Size returns the buffer dimensions.
func (b *Buffer) Size() (width, height int) { return b.width, b.height }

// InBounds reports whether the coordinates are within the buffer.
func (b *Buffer) InBounds(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

func (b *Buffer) index(x, y int) int { return y*b.width + x }

// Get returns the cell at the given coordinates. Out of bounds reads return
// a default space and never mutate dirty state.
func (b *Buffer) Get(x, y int) Cell {
	if !b.InBounds(x, y) {
		return EmptyCell()
	}
	return b.cells[b.index(x, y)]
}

// Set writes a cell, honoring the scissor clip and the opacity stack.
// Out-of-bounds coordinates are silently ignored. A cell of display width
// w > 1 is written atomically with w-1 tail cells; if it would cross the
// right edge it is replaced with a space.
func (b *Buffer) Set(x, y int, c Cell) {
	if !b.InBounds(x, y) || !b.clip.Contains(x, y) {
		return
	}

	w := c.Width()
	if w > 1 {
		// The whole glyph must fit inside both the buffer and the clip,
		// or it degrades to a styled space.
		if x+w > b.width || !b.clip.Contains(x+w-1, y) {
			c.Content = ' '
			w = 1
		}
	}

	if b.opacity < 1 {
		prior := b.cells[b.index(x, y)]
		c.Fg = blendColor(prior.Fg, c.Fg, b.opacity)
		c.Bg = blendColor(prior.Bg, c.Bg, b.opacity)
	}

	idx := b.index(x, y)
	b.cells[idx] = c
	for i := 1; i < w; i++ {
		b.cells[idx+i] = c.tail()
	}
	b.dirtyRows[y] = true
}

// SetRune writes a single scalar with the given style.
func (b *Buffer) SetRune(x, y int, r rune, fg, bg uint32, flags uint16) {
	b.Set(x, y, NewCell(r, fg, bg, flags))
}

// WriteString writes a string of scalars left to right, advancing by each
// rune's display width. Returns the next x position.
func (b *Buffer) WriteString(x, y int, s string, fg, bg uint32, flags uint16) int {
	for _, r := range s {
		if x >= b.width {
			break
		}
		b.Set(x, y, NewCell(r, fg, bg, flags))
		x += scalarWidth(r)
	}
	return x
}

// Fill fills the entire buffer with the given cell, bypassing clip and
// opacity. All rows become dirty.
func (b *Buffer) Fill(c Cell) {
	for i := range b.cells {
		b.cells[i] = c
	}
	b.allDirty = true
}

// Clear resets every cell to an empty space. Uses copy() from a cached
// empty row (memmove beats a scalar loop).
func (b *Buffer) Clear() {
	row := emptyRow(b.width)
	for y := 0; y < b.height; y++ {
		copy(b.cells[y*b.width:(y+1)*b.width], row)
	}
	b.allDirty = true
}

// PushScissor intersects a rectangle with the current clip. Affects
// subsequent writes only; the effective clip monotonically shrinks.
func (b *Buffer) PushScissor(r Rect) {
	b.scissors = append(b.scissors, r)
	b.clip = b.clip.Intersect(r)
}

// PopScissor removes the most recent scissor and recomputes the clip.
func (b *Buffer) PopScissor() {
	if len(b.scissors) == 0 {
		return
	}
	b.scissors = b.scissors[:len(b.scissors)-1]
	clip := Rect{W: b.width, H: b.height}
	for _, r := range b.scissors {
		clip = clip.Intersect(r)
	}
	b.clip = clip
}

// Clip returns the effective scissor intersection.
func (b *Buffer) Clip() Rect { return b.clip }

// PushOpacity multiplies the effective opacity by a, clamped to [0,1].
func (b *Buffer) PushOpacity(a float64) {
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	b.opacities = append(b.opacities, a)
	b.opacity *= a
}

// PopOpacity removes the most recent opacity and recomputes the product.
func (b *Buffer) PopOpacity() {
	if len(b.opacities) == 0 {
		return
	}
	b.opacities = b.opacities[:len(b.opacities)-1]
	b.opacity = 1
	for _, a := range b.opacities {
		b.opacity *= a
	}
}

// Opacity returns the effective opacity product.
func (b *Buffer) Opacity() float64 { return b.opacity }

// RowsEqual reports whether row y holds identical cells in both buffers.
// Cells compare as 16-byte values, so this is a straight memory compare.
func (b *Buffer) RowsEqual(other *Buffer, y int) bool {
	if y < 0 || y >= b.height || b.width != other.width || y >= other.height {
		return false
	}
	ar := b.cells[y*b.width : (y+1)*b.width]
	br := other.cells[y*other.width : (y+1)*other.width]
	for i := range ar {
		if ar[i] != br[i] {
			return false
		}
	}
	return true
}

// RowDirty reports whether row y has been written since the last ClearDirty.
func (b *Buffer) RowDirty(y int) bool {
	if b.allDirty {
		return true
	}
	if y < 0 || y >= len(b.dirtyRows) {
		return false
	}
	return b.dirtyRows[y]
}

// DirtyRows returns the indices of dirty rows in ascending order.
func (b *Buffer) DirtyRows() []int {
	rows := make([]int, 0, b.height)
	for y := 0; y < b.height; y++ {
		if b.RowDirty(y) {
			rows = append(rows, y)
		}
	}
	return rows
}

// ClearDirty resets dirty tracking. No row is dirty again until the next
// mutation.
func (b *Buffer) ClearDirty() {
	b.allDirty = false
	for i := range b.dirtyRows {
		b.dirtyRows[i] = false
	}
}

// MarkAllDirty forces every row dirty, e.g. after the front buffer has been
// invalidated by a partial write.
func (b *Buffer) MarkAllDirty() {
	b.allDirty = true
}

// CopyFrom copies all cells from src in one bulk copy. Dimensions must
// match; the destination is marked fully dirty.
func (b *Buffer) CopyFrom(src *Buffer) {
	if b.width != src.width || b.height != src.height {
		return
	}
	copy(b.cells, src.cells)
	b.allDirty = true
}

// row returns the backing slice for row y.
func (b *Buffer) row(y int) []Cell {
	return b.cells[y*b.width : (y+1)*b.width]
}

package loom

import (
	"unicode/utf8"
)

// FlushStats holds statistics from the most recent presented frame.
type FlushStats struct {
	Runs  int
	Cells int
	Bytes int
}

// Presenter converts change-run lists into a minimal byte stream. It tracks
// the terminal's SGR state, cursor position and hyperlink depth so it only
// emits what actually changed, and brackets each frame in synchronized
// output when the terminal supports it.
type Presenter struct {
	w    *TermWriter
	caps Capabilities
	pool *GraphemePool

	// Tracked terminal state. Reset on Reset() and after restoration.
	fg, bg     uint32
	flags      uint16
	styleValid bool
	link       uint16
	linkOpen   bool
	curX, curY int
	curValid   bool

	// Inline region: all cursor rows are offset by originRow. Zero in alt
	// mode.
	originRow int
	regionH   int

	links []string // current frame's URI registry
	buf   []byte
	stats FlushStats
}

// NewPresenter creates a presenter writing through the given gate.
func NewPresenter(w *TermWriter, caps Capabilities, pool *GraphemePool) *Presenter {
	return &Presenter{w: w, caps: caps, pool: pool, buf: make([]byte, 0, 4096)}
}

// SetRegion positions the presenter's drawing region. Inline mode passes
// the band's first terminal row and reserved height; alt mode uses (0, h).
func (p *Presenter) SetRegion(originRow, height int) {
	p.originRow = originRow
	p.regionH = height
}

// Reset forgets all tracked terminal state, forcing the next frame to emit
// style and position from scratch. Call after the terminal has been
// restored or an external writer may have touched it.
func (p *Presenter) Reset() {
	p.styleValid = false
	p.curValid = false
	p.linkOpen = false
	p.link = 0
}

// LastStats returns statistics from the most recent Present call.
func (p *Presenter) LastStats() FlushStats {
	return p.stats
}

// Present emits the change runs against next as one gated write. A write
// failure invalidates all tracked state; the caller must schedule a full
// repaint before the next frame.
func (p *Presenter) Present(next *Buffer, runs []ChangeRun, links []string, cursor *CursorState) error {
	p.links = links
	p.buf = p.buf[:0]
	cells := 0

	if p.caps.SyncOutput {
		p.buf = append(p.buf, ansiSyncBegin...)
	}

	for _, run := range runs {
		if run.Len <= 0 {
			continue
		}
		p.moveCursor(run.Col, run.Row)
		for i := 0; i < run.Len; i++ {
			x := run.Col + i
			cell := next.Get(x, run.Row)
			if cell.IsTail() {
				if i == 0 {
					// A tail with no head in the run: repaint as a space so
					// the column is never left stale.
					cell.Content = ' '
				} else {
					continue // covered by its head's width
				}
			}
			p.writeCell(cell)
			cells++
		}
		// Writing through the last column arms the terminal's pending-wrap
		// state; relative moves from there are unreliable.
		if p.curX >= next.Width() {
			p.curValid = false
		}
	}

	if p.linkOpen {
		p.buf = append(p.buf, ansiLinkClose...)
		p.linkOpen = false
		p.link = 0
	}

	if cursor != nil {
		if cursor.Shape != CursorDefault {
			p.buf = appendShape(p.buf, cursor.Shape)
		}
		p.buf = appendCUP(p.buf, p.originRow+cursor.Y+1, cursor.X+1)
		p.curX, p.curY, p.curValid = cursor.X, cursor.Y, true
		p.buf = append(p.buf, ansiCursorShow...)
	} else {
		p.buf = append(p.buf, ansiCursorHide...)
	}

	if p.caps.SyncOutput {
		p.buf = append(p.buf, ansiSyncEnd...)
	}

	p.stats = FlushStats{Runs: len(runs), Cells: cells, Bytes: len(p.buf)}

	if _, err := p.w.Write(p.buf); err != nil {
		// Partial emission: the terminal's true state is unknown.
		p.Reset()
		return err
	}
	return nil
}

// PreClear erases the drawing region line by line with EL. Inline mode
// calls this before the first frame so the band starts clean without
// touching scrollback.
func (p *Presenter) PreClear() error {
	p.buf = p.buf[:0]
	for y := 0; y < p.regionH; y++ {
		p.buf = appendCUP(p.buf, p.originRow+y+1, 1)
		p.buf = append(p.buf, ansiClearLine...)
	}
	p.curValid = false
	_, err := p.w.Write(p.buf)
	return err
}

// Park places the cursor on the first column below the drawing region and
// shows it. Inline teardown calls this so the shell prompt resumes under
// the band.
func (p *Presenter) Park() error {
	p.buf = p.buf[:0]
	p.buf = appendCUP(p.buf, p.originRow+p.regionH+1, 1)
	p.buf = append(p.buf, ansiReset...)
	p.buf = append(p.buf, ansiCursorShow...)
	p.Reset()
	_, err := p.w.Write(p.buf)
	return err
}

// moveCursor emits the cheapest sequence that puts the cursor at buffer
// position (x, y). The cost model counts bytes: CUP is 4 plus the digits of
// row and column, CHA is 3 plus the digits of the column, a relative move
// is 3 plus the digits of the delta. Ties prefer the absolute form.
func (p *Presenter) moveCursor(x, y int) {
	row := p.originRow + y + 1
	col := x + 1

	if p.curValid && p.curX == x && p.curY == y {
		return
	}

	if !p.curValid {
		p.buf = appendCUP(p.buf, row, col)
		p.curX, p.curY, p.curValid = x, y, true
		return
	}

	type move struct {
		cost int
		emit func()
	}
	best := move{
		cost: 4 + digits(row) + digits(col),
		emit: func() { p.buf = appendCUP(p.buf, row, col) },
	}

	consider := func(m move) {
		if m.cost < best.cost {
			best = m
		}
	}

	if y == p.curY {
		consider(move{
			cost: 3 + digits(col),
			emit: func() { p.buf = appendCHA(p.buf, col) },
		})
		if dx := x - p.curX; dx > 0 {
			consider(move{
				cost: 3 + digits(dx),
				emit: func() { p.buf = appendRel(p.buf, dx, 'C') },
			})
		} else if dx < 0 {
			consider(move{
				cost: 3 + digits(-dx),
				emit: func() { p.buf = appendRel(p.buf, -dx, 'D') },
			})
		}
	} else if x == p.curX {
		if dy := y - p.curY; dy > 0 {
			consider(move{
				cost: 3 + digits(dy),
				emit: func() { p.buf = appendRel(p.buf, dy, 'B') },
			})
		} else {
			consider(move{
				cost: 3 + digits(-dy),
				emit: func() { p.buf = appendRel(p.buf, -dy, 'A') },
			})
		}
	}

	// Newline+CR reaches column zero of the next row in two bytes. Used only
	// when the region starts at the top terminal row (alt mode or a
	// top-anchored inline band) and the target row lies inside the region,
	// so the line feed never scrolls.
	if p.originRow == 0 && x == 0 && y == p.curY+1 && p.regionH > 0 && y < p.regionH {
		consider(move{
			cost: 2,
			emit: func() { p.buf = append(p.buf, '\r', '\n') },
		})
	}

	best.emit()
	p.curX, p.curY = x, y
}

// writeCell emits one cell: style delta, link transition, then content.
func (p *Presenter) writeCell(cell Cell) {
	if !p.styleValid || cell.Fg != p.fg || cell.Bg != p.bg || cell.Flags != p.flags {
		p.writeStyle(cell)
	}

	if cell.Link != p.link && p.caps.Hyperlinks {
		if p.linkOpen {
			p.buf = append(p.buf, ansiLinkClose...)
			p.linkOpen = false
		}
		if cell.Link != 0 {
			if uri := p.linkURI(cell.Link); uri != "" {
				p.buf = appendLinkOpen(p.buf, uri)
				p.linkOpen = true
			}
		}
		p.link = cell.Link
	}

	switch {
	case cell.IsPoolRef():
		cluster, _ := p.pool.Lookup(cell.Grapheme())
		if cluster == "" {
			cluster = " "
		}
		p.buf = append(p.buf, cluster...)
	default:
		p.buf = utf8.AppendRune(p.buf, rune(cell.Content))
	}

	p.curX += cell.Width()
}

// linkURI resolves a link id against the current frame's registry.
func (p *Presenter) linkURI(id uint16) string {
	i := int(id) - 1
	if i < 0 || i >= len(p.links) {
		return ""
	}
	return p.links[i]
}

// writeStyle emits a reset followed by the cell's full style as one SGR.
// Reset-and-apply leaves no residual attributes across frames regardless
// of what the terminal thought its state was.
func (p *Presenter) writeStyle(cell Cell) {
	b := append(p.buf, "\x1b[0"...)

	if cell.Flags&FlagBold != 0 {
		b = append(b, ";1"...)
	}
	if cell.Flags&FlagDim != 0 {
		b = append(b, ";2"...)
	}
	if cell.Flags&FlagItalic != 0 {
		b = append(b, ";3"...)
	}
	if cell.Flags&FlagUnderline != 0 {
		b = append(b, ";4"...)
	}
	if cell.Flags&FlagBlink != 0 {
		b = append(b, ";5"...)
	}
	if cell.Flags&FlagInverse != 0 {
		b = append(b, ";7"...)
	}
	if cell.Flags&FlagHidden != 0 {
		b = append(b, ";8"...)
	}
	if cell.Flags&FlagStrikethrough != 0 {
		b = append(b, ";9"...)
	}

	b = p.appendColor(b, cell.Fg, true)
	b = p.appendColor(b, cell.Bg, false)
	b = append(b, 'm')

	p.buf = b
	p.fg, p.bg, p.flags = cell.Fg, cell.Bg, cell.Flags
	p.styleValid = true
}

// appendColor emits a packed RGBA color at the session's color depth.
func (p *Presenter) appendColor(b []byte, c uint32, fg bool) []byte {
	if isDefaultColor(c) || p.caps.Depth == ColorMono {
		return b // reset already selected the default colors
	}
	r, g, bl := colorR(c), colorG(c), colorB(c)
	switch p.caps.Depth {
	case ColorTrue:
		if fg {
			b = append(b, ";38;2;"...)
		} else {
			b = append(b, ";48;2;"...)
		}
		b = appendInt(b, int(r))
		b = append(b, ';')
		b = appendInt(b, int(g))
		b = append(b, ';')
		b = appendInt(b, int(bl))
	case Color256:
		if fg {
			b = append(b, ";38;5;"...)
		} else {
			b = append(b, ";48;5;"...)
		}
		b = appendInt(b, int(rgbTo256(r, g, bl)))
	default: // 16 colors
		n := rgbTo16(r, g, bl)
		base := 30
		if !fg {
			base = 40
		}
		if n >= 8 {
			base += 60
			n -= 8
		}
		b = append(b, ';')
		b = appendInt(b, base+n)
	}
	return b
}

// rgbTo256 maps an RGB color onto the xterm 256-color cube and gray ramp.
func rgbTo256(r, g, b uint8) uint8 {
	if r == g && g == b {
		if r < 8 {
			return 16
		}
		if r > 248 {
			return 231
		}
		return uint8(232 + (int(r)-8)*24/240)
	}
	ri := (int(r)*5 + 127) / 255
	gi := (int(g)*5 + 127) / 255
	bi := (int(b)*5 + 127) / 255
	return uint8(16 + 36*ri + 6*gi + bi)
}

// rgbTo16 maps an RGB color onto the 16 ANSI colors.
func rgbTo16(r, g, b uint8) int {
	bright := 0
	if int(r)+int(g)+int(b) > 3*170 {
		bright = 8
	}
	n := 0
	if r > 127 {
		n |= 1
	}
	if g > 127 {
		n |= 2
	}
	if b > 127 {
		n |= 4
	}
	return n | bright
}

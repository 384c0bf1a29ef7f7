package loom

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"
)

// Cell is one grid position. It is exactly 16 bytes and two cells are equal
// iff their byte representations are equal, which keeps row comparison and
// diffing a straight memory compare.
//
// Content is a tagged union. Unicode scalars occupy values up to 0x0010FFFF.
// Everything above the scalar range is reserved: TailSentinel marks the
// continuation cells of a wide glyph, and any value with a nonzero width
// field in the top seven bits (>= 0x02000000) is a GraphemeID referencing
// the grapheme pool.
type Cell struct {
	Content uint32 // scalar, TailSentinel, or GraphemeID
	Fg      uint32 // packed RGBA foreground; 0 = terminal default
	Bg      uint32 // packed RGBA background; 0 = terminal default
	Flags   uint16 // style bits
	Link    uint16 // per-frame hyperlink registry index; 0 = no link
}

// TailSentinel fills the continuation cells behind a glyph of display width
// w > 1. Tails carry the same style as their head.
const TailSentinel uint32 = 0x01000000

// maxScalar is the highest valid Unicode scalar value.
const maxScalar uint32 = 0x0010FFFF

// Style flag bits. The remaining bits of Flags are reserved.
const (
	FlagBold uint16 = 1 << iota
	FlagDim
	FlagItalic
	FlagUnderline
	FlagBlink
	FlagInverse
	FlagHidden
	FlagStrikethrough
)

// NewCell returns a cell holding a single scalar.
func NewCell(r rune, fg, bg uint32, flags uint16) Cell {
	return Cell{Content: uint32(r), Fg: fg, Bg: bg, Flags: flags}
}

// EmptyCell is a space with default style and no link.
func EmptyCell() Cell {
	return Cell{Content: ' '}
}

// IsScalar reports whether the cell holds a plain Unicode scalar.
func (c Cell) IsScalar() bool {
	return c.Content <= maxScalar
}

// IsTail reports whether the cell is a wide-glyph continuation.
func (c Cell) IsTail() bool {
	return c.Content == TailSentinel
}

// IsPoolRef reports whether the cell references a grapheme pool slot.
func (c Cell) IsPoolRef() bool {
	return c.Content >= graphemeIDMin
}

// Rune returns the scalar content, or 0 for tails and pool references.
func (c Cell) Rune() rune {
	if !c.IsScalar() {
		return 0
	}
	return rune(c.Content)
}

// Grapheme returns the pool reference, or 0 if the cell is not one.
func (c Cell) Grapheme() GraphemeID {
	if !c.IsPoolRef() {
		return 0
	}
	return GraphemeID(c.Content)
}

// Width returns the display width of the cell's content: 0 for tails,
// the encoded cluster width for pool references, and the rune width for
// scalars (zero-width scalars count as 1 when placed standalone).
func (c Cell) Width() int {
	switch {
	case c.IsTail():
		return 0
	case c.IsPoolRef():
		return c.Grapheme().Width()
	default:
		w := runewidth.RuneWidth(rune(c.Content))
		if w < 1 {
			w = 1
		}
		return w
	}
}

// tail returns the continuation cell matching this head's style.
func (c Cell) tail() Cell {
	return Cell{Content: TailSentinel, Fg: c.Fg, Bg: c.Bg, Flags: c.Flags, Link: c.Link}
}

// Packed RGBA colors. Channel layout is R in the top byte down to A in the
// low byte. Alpha zero means "terminal default color", so the zero value of
// a cell renders with the terminal's own palette.

// RGB packs an opaque color.
func RGB(r, g, b uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | 0xFF
}

// RGBA packs a color with explicit alpha.
func RGBA(r, g, b, a uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

func colorR(c uint32) uint8 { return uint8(c >> 24) }
func colorG(c uint32) uint8 { return uint8(c >> 16) }
func colorB(c uint32) uint8 { return uint8(c >> 8) }
func colorA(c uint32) uint8 { return uint8(c) }

// isDefaultColor reports whether the packed color means "terminal default".
func isDefaultColor(c uint32) bool {
	return colorA(c) == 0
}

// blendColor blends next over prior with the given opacity in [0,1].
// Default colors pass through untouched: there is no RGB value to blend
// against the terminal's own palette.
func blendColor(prior, next uint32, opacity float64) uint32 {
	if opacity >= 1 {
		return next
	}
	if isDefaultColor(next) || isDefaultColor(prior) {
		return next
	}
	a := colorful.Color{
		R: float64(colorR(prior)) / 255,
		G: float64(colorG(prior)) / 255,
		B: float64(colorB(prior)) / 255,
	}
	b := colorful.Color{
		R: float64(colorR(next)) / 255,
		G: float64(colorG(next)) / 255,
		B: float64(colorB(next)) / 255,
	}
	m := a.BlendRgb(b, opacity).Clamped()
	return RGBA(uint8(m.R*255+0.5), uint8(m.G*255+0.5), uint8(m.B*255+0.5), colorA(next))
}

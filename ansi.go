package loom

// The control-sequence vocabulary this package emits. Only the sequences
// the presenter and session produce themselves; this is not a VT emulator.
const (
	ansiReset       = "\x1b[0m"
	ansiClearScreen = "\x1b[2J"
	ansiClearLine   = "\x1b[0K"
	ansiCursorHome  = "\x1b[H"
	ansiCursorShow  = "\x1b[?25h"
	ansiCursorHide  = "\x1b[?25l"
	ansiCursorSave  = "\x1b7"
	ansiCursorLoad  = "\x1b8"

	ansiAltEnter = "\x1b[?1049h"
	ansiAltExit  = "\x1b[?1049l"

	ansiSyncBegin = "\x1b[?2026h"
	ansiSyncEnd   = "\x1b[?2026l"

	ansiMouseOn   = "\x1b[?1000h\x1b[?1006h"
	ansiMouseOff  = "\x1b[?1006l\x1b[?1000l"
	ansiPasteOn   = "\x1b[?2004h"
	ansiPasteOff  = "\x1b[?2004l"
	ansiFocusOn   = "\x1b[?1004h"
	ansiFocusOff  = "\x1b[?1004l"
	ansiLinkClose = "\x1b]8;;\x1b\\"
)

// appendInt appends a non-negative integer without allocation.
func appendInt(b []byte, n int) []byte {
	if n <= 0 {
		return append(b, '0')
	}
	var scratch [10]byte
	i := len(scratch)
	for n > 0 {
		i--
		scratch[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, scratch[i:]...)
}

// digits returns the decimal digit count of n, the unit of the presenter's
// cursor cost model.
func digits(n int) int {
	if n < 0 {
		n = -n
	}
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// appendCUP appends an absolute cursor position (1-based row;col).
func appendCUP(b []byte, row, col int) []byte {
	b = append(b, "\x1b["...)
	b = appendInt(b, row)
	b = append(b, ';')
	b = appendInt(b, col)
	return append(b, 'H')
}

// appendCHA appends a column-absolute move on the current row.
func appendCHA(b []byte, col int) []byte {
	b = append(b, "\x1b["...)
	b = appendInt(b, col)
	return append(b, 'G')
}

// appendRel appends a relative cursor move; dir is one of 'A' (up),
// 'B' (down), 'C' (forward), 'D' (back).
func appendRel(b []byte, n int, dir byte) []byte {
	b = append(b, "\x1b["...)
	b = appendInt(b, n)
	return append(b, dir)
}

// appendLinkOpen appends an OSC 8 hyperlink open for the given URI.
func appendLinkOpen(b []byte, uri string) []byte {
	b = append(b, "\x1b]8;;"...)
	b = append(b, uri...)
	return append(b, "\x1b\\"...)
}

// appendShape appends a DECSCUSR cursor shape selection.
func appendShape(b []byte, shape CursorShape) []byte {
	b = append(b, "\x1b["...)
	b = appendInt(b, int(shape))
	return append(b, " q"...)
}

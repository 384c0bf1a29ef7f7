package loom

import (
	"unicode/utf8"
)

// maxSequence caps how many bytes a single escape sequence may span. A
// sequence that grows past the cap is malformed or hostile; it aborts to
// literal-byte output so a garbage stream cannot stall the parser.
const maxSequence = 256

// Parser is a byte-oriented state machine turning raw terminal input into
// events. Feed it reads as they arrive; incomplete escape sequences are
// buffered until the next read. Flush resolves a pending lone ESC after a
// read timeout.
type Parser struct {
	pending []byte

	inPaste  bool
	pasteBuf []byte

	// errs counts dropped malformed sequences; the session logs the first.
	errs int
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Errors returns how many malformed or over-long sequences were dropped.
func (p *Parser) Errors() int {
	return p.errs
}

// Feed appends data and returns all events that are complete so far.
func (p *Parser) Feed(data []byte) []Event {
	p.pending = append(p.pending, data...)
	var events []Event
	for len(p.pending) > 0 {
		consumed, ev, complete := p.step()
		if !complete {
			if len(p.pending) > maxSequence {
				// DoS guard: dump the stuck sequence as literal bytes.
				p.errs++
				events = append(events, p.literals(p.pending)...)
				p.pending = p.pending[:0]
			}
			break
		}
		if ev != nil {
			events = append(events, ev)
		}
		p.pending = p.pending[consumed:]
	}
	return events
}

// Flush resolves buffered state after an input lull: a lone ESC becomes an
// escape key press, anything else is reparsed as literals.
func (p *Parser) Flush() []Event {
	if len(p.pending) == 0 {
		return nil
	}
	var events []Event
	if p.pending[0] == 0x1b && len(p.pending) == 1 {
		events = append(events, KeyEvent{Code: KeyEscape})
	} else {
		events = p.literals(p.pending)
	}
	p.pending = p.pending[:0]
	return events
}

// step consumes one event from the front of pending. complete=false means
// more bytes are needed.
func (p *Parser) step() (consumed int, ev Event, complete bool) {
	data := p.pending

	if p.inPaste {
		return p.stepPaste()
	}

	b := data[0]

	// Fast path: printable ASCII.
	if b >= 0x20 && b < 0x7f {
		return 1, KeyEvent{Code: KeyRune, Rune: rune(b)}, true
	}

	if b == 0x1b {
		return p.stepEscape()
	}

	if b < 0x20 {
		return 1, controlKey(b), true
	}

	if b == 0x7f {
		return 1, KeyEvent{Code: KeyBackspace}, true
	}

	// UTF-8.
	if !utf8.FullRune(data) {
		return 0, nil, false
	}
	r, size := utf8.DecodeRune(data)
	return size, KeyEvent{Code: KeyRune, Rune: r}, true
}

// stepPaste accumulates bytes until the bracketed-paste close envelope.
func (p *Parser) stepPaste() (int, Event, bool) {
	data := p.pending
	for i := 0; i < len(data); i++ {
		if data[i] != 0x1b {
			continue
		}
		if len(data)-i < 6 {
			// Possible partial close marker: keep what we have.
			p.pasteBuf = append(p.pasteBuf, data[:i]...)
			p.pending = p.pending[i:]
			return 0, nil, false
		}
		if string(data[i:i+6]) == "\x1b[201~" {
			p.pasteBuf = append(p.pasteBuf, data[:i]...)
			text := string(p.pasteBuf)
			p.pasteBuf = p.pasteBuf[:0]
			p.inPaste = false
			return i + 6, PasteEvent{Text: text}, true
		}
	}
	p.pasteBuf = append(p.pasteBuf, data...)
	p.pending = p.pending[:0]
	return 0, nil, false
}

// stepEscape dispatches ESC-prefixed input: CSI, SS3, OSC or Alt+key.
func (p *Parser) stepEscape() (int, Event, bool) {
	data := p.pending
	if len(data) < 2 {
		return 0, nil, false
	}

	switch data[1] {
	case '[':
		return p.stepCSI()
	case 'O':
		return p.stepSS3()
	case ']':
		return p.stepOSC()
	case 0x1b:
		return 1, KeyEvent{Code: KeyEscape}, true
	}

	// ESC + printable: Alt-modified key.
	if data[1] >= 0x20 && data[1] < 0x7f {
		return 2, KeyEvent{Code: KeyRune, Rune: rune(data[1]), Mod: ModAlt}, true
	}
	if data[1] < 0x20 || data[1] == 0x7f {
		ev := controlKey(data[1])
		if ke, ok := ev.(KeyEvent); ok {
			ke.Mod |= ModAlt
			return 2, ke, true
		}
		return 2, ev, true
	}
	return 1, KeyEvent{Code: KeyEscape}, true
}

// stepCSI parses a CSI sequence: parameters, then a final byte in 0x40-0x7e.
func (p *Parser) stepCSI() (int, Event, bool) {
	data := p.pending
	end := 2
	limit := len(data)
	if limit > maxSequence {
		limit = maxSequence
	}
	for end < limit {
		b := data[end]
		if b >= 0x40 && b <= 0x7e {
			end++
			return p.dispatchCSI(data[2:end-1], data[end-1], end)
		}
		if b < 0x20 || b > 0x3f {
			// Not a CSI byte: malformed. Drop the introducer.
			p.errs++
			return 2, nil, true
		}
		end++
	}
	if len(data) > maxSequence {
		p.errs++
		return 2, nil, true
	}
	return 0, nil, false
}

// dispatchCSI decodes a complete CSI body.
func (p *Parser) dispatchCSI(params []byte, final byte, consumed int) (int, Event, bool) {
	// SGR mouse: CSI < b ; x ; y M/m
	if len(params) > 0 && params[0] == '<' && (final == 'M' || final == 'm') {
		if ev, ok := decodeSGRMouse(params[1:], final); ok {
			return consumed, ev, true
		}
		p.errs++
		return consumed, nil, true
	}

	// Focus reporting.
	if len(params) == 0 {
		if final == 'I' {
			return consumed, FocusEvent{Gained: true}, true
		}
		if final == 'O' {
			return consumed, FocusEvent{Gained: false}, true
		}
	}

	nums := splitParams(params)

	switch final {
	case '~':
		if len(nums) == 0 {
			p.errs++
			return consumed, nil, true
		}
		switch nums[0] {
		case 200:
			p.inPaste = true
			return consumed, nil, true
		case 201:
			// Stray close with no open: drop.
			return consumed, nil, true
		}
		key, ok := csiTildeKeys[nums[0]]
		if !ok {
			p.errs++
			return consumed, nil, true
		}
		var mod Modifier
		if len(nums) > 1 {
			mod = decodeModifiers(nums[1])
		}
		return consumed, KeyEvent{Code: key, Mod: mod}, true

	case 'A', 'B', 'C', 'D', 'F', 'H', 'P', 'Q', 'R', 'S', 'Z':
		key := csiLetterKeys[final]
		var mod Modifier
		// Modified form: CSI 1 ; m X
		if len(nums) == 2 && nums[0] == 1 {
			mod = decodeModifiers(nums[1])
		}
		if final == 'Z' {
			mod |= ModShift
		}
		return consumed, KeyEvent{Code: key, Mod: mod}, true
	}

	// Recognized shape, unhandled meaning: consume silently.
	return consumed, nil, true
}

// stepSS3 parses an SS3 sequence (application cursor keys, F1-F4).
func (p *Parser) stepSS3() (int, Event, bool) {
	data := p.pending
	if len(data) < 3 {
		return 0, nil, false
	}
	if key, ok := csiLetterKeys[data[2]]; ok {
		return 3, KeyEvent{Code: key}, true
	}
	p.errs++
	return 3, nil, true
}

// stepOSC consumes an OSC sequence terminated by BEL or ST. We emit OSC
// ourselves but receive it only as noise (e.g. replies we did not ask for).
func (p *Parser) stepOSC() (int, Event, bool) {
	data := p.pending
	limit := len(data)
	if limit > maxSequence {
		limit = maxSequence
	}
	for i := 2; i < limit; i++ {
		if data[i] == 0x07 {
			return i + 1, nil, true
		}
		if data[i] == 0x1b && i+1 < limit && data[i+1] == '\\' {
			return i + 2, nil, true
		}
	}
	if len(data) > maxSequence {
		p.errs++
		return 2, nil, true
	}
	return 0, nil, false
}

// literals re-emits buffered bytes as plain events, used when a sequence
// is abandoned.
func (p *Parser) literals(data []byte) []Event {
	var events []Event
	for len(data) > 0 {
		b := data[0]
		switch {
		case b == 0x1b:
			events = append(events, KeyEvent{Code: KeyEscape})
			data = data[1:]
		case b < 0x20:
			events = append(events, controlKey(b))
			data = data[1:]
		case b == 0x7f:
			events = append(events, KeyEvent{Code: KeyBackspace})
			data = data[1:]
		default:
			r, size := utf8.DecodeRune(data)
			events = append(events, KeyEvent{Code: KeyRune, Rune: r})
			data = data[size:]
		}
	}
	return events
}

// controlKey maps a C0 control byte to a key event.
func controlKey(b byte) Event {
	switch b {
	case 0x09:
		return KeyEvent{Code: KeyTab}
	case 0x0a, 0x0d:
		return KeyEvent{Code: KeyEnter}
	case 0x08:
		return KeyEvent{Code: KeyBackspace}
	case 0x1b:
		return KeyEvent{Code: KeyEscape}
	case 0x00:
		return KeyEvent{Code: KeySpace, Mod: ModCtrl}
	}
	// Ctrl+letter: 0x01..0x1a.
	if b >= 0x01 && b <= 0x1a {
		return KeyEvent{Code: KeyRune, Rune: rune('a' + b - 1), Mod: ModCtrl}
	}
	return KeyEvent{Code: KeyNone}
}

// splitParams parses semicolon-separated numeric CSI parameters.
func splitParams(params []byte) []int {
	if len(params) == 0 {
		return nil
	}
	nums := make([]int, 0, 4)
	n := 0
	has := false
	for _, b := range params {
		switch {
		case b >= '0' && b <= '9':
			n = n*10 + int(b-'0')
			has = true
		case b == ';':
			nums = append(nums, n)
			n = 0
			has = false
		default:
			return nums // private markers etc. end numeric parsing
		}
	}
	if has || len(nums) > 0 {
		nums = append(nums, n)
	}
	return nums
}

// decodeSGRMouse decodes the body of CSI < b ; x ; y M/m.
func decodeSGRMouse(params []byte, final byte) (MouseEvent, bool) {
	nums := splitParams(params)
	if len(nums) != 3 {
		return MouseEvent{}, false
	}
	b, x, y := nums[0], nums[1], nums[2]

	var mod Modifier
	if b&4 != 0 {
		mod |= ModShift
	}
	if b&8 != 0 {
		mod |= ModAlt
	}
	if b&16 != 0 {
		mod |= ModCtrl
	}

	motion := b&32 != 0
	wheel := b&64 != 0

	ev := MouseEvent{X: x - 1, Y: y - 1, Mod: mod}

	switch {
	case wheel:
		ev.Action = MouseScroll
		if b&3 == 0 {
			ev.Button = MouseWheelUp
		} else {
			ev.Button = MouseWheelDown
		}
	default:
		switch b & 3 {
		case 0:
			ev.Button = MouseLeft
		case 1:
			ev.Button = MouseMiddle
		case 2:
			ev.Button = MouseRight
		case 3:
			ev.Button = MouseNone
		}
		switch {
		case motion && ev.Button == MouseNone:
			ev.Action = MouseMove
		case motion:
			ev.Action = MouseDrag
		case final == 'M':
			ev.Action = MousePress
		default:
			ev.Action = MouseRelease
		}
	}
	return ev, true
}

package loom

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// escapeTimeout is how long a lone ESC may sit unparsed before it is
// delivered as an escape key press rather than a sequence introducer.
const escapeTimeout = 50 * time.Millisecond

// Session owns the terminal's mode state for the lifetime of the program:
// raw mode, screen mode, and mouse/paste/focus reporting. Close is
// idempotent and restores everything; the runtime also arranges for it to
// run on panic and signal paths.
type Session struct {
	cfg  Config
	caps Capabilities
	tw   *TermWriter

	inFile  *os.File // nil when input is not a file
	outFile *os.File // nil when output is not a file
	saved   *term.State

	width, height int

	reader cancelreader.CancelReader
	rawIn  io.Reader // fallback when the input cannot be made cancelable
	events chan Event
	done   chan struct{}
	winch  chan os.Signal

	parser *Parser

	altEntered bool
	mouseOn    bool
	pasteOn    bool
	focusOn    bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	parseLogged atomic.Bool
}

// Open acquires the terminal. It fails with ErrTerminalUnavailable when the
// output is not a terminal and ErrRawModeRejected when raw mode cannot be
// enabled; in both cases no terminal state has been touched beyond the
// probe.
func Open(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:    cfg,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		winch:  make(chan os.Signal, 1),
		parser: NewParser(),
	}

	if f, ok := cfg.Output.(*os.File); ok {
		if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
			return nil, ErrTerminalUnavailable
		}
		s.outFile = f
	}
	if f, ok := cfg.Input.(*os.File); ok {
		s.inFile = f
	}

	s.caps = DetectCapabilities()
	if cfg.ColorOverride != colorAuto {
		s.caps.Depth = cfg.ColorOverride
	}

	if s.inFile != nil && isatty.IsTerminal(s.inFile.Fd()) {
		saved, err := term.MakeRaw(int(s.inFile.Fd()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRawModeRejected, err)
		}
		s.saved = saved
	}

	s.width, s.height = 80, 24
	if s.outFile != nil {
		if w, h, err := terminalSize(int(s.outFile.Fd())); err == nil && w > 0 && h > 0 {
			s.width, s.height = w, h
		}
	}

	s.tw = NewTermWriter(cfg.Output)

	var init []byte
	if cfg.Mode == ModeAlt {
		init = append(init, ansiAltEnter...)
		init = append(init, ansiClearScreen...)
		init = append(init, ansiCursorHome...)
		s.altEntered = true
	}
	init = append(init, ansiCursorHide...)
	if cfg.EnablePaste && s.caps.Paste {
		init = append(init, ansiPasteOn...)
		s.pasteOn = true
	}
	if cfg.EnableMouse && s.caps.Mouse {
		init = append(init, ansiMouseOn...)
		s.mouseOn = true
	}
	if cfg.EnableFocus && s.caps.Focus {
		init = append(init, ansiFocusOn...)
		s.focusOn = true
	}
	if _, err := s.tw.Write(init); err != nil {
		s.restore()
		return nil, err
	}

	if r, err := cancelreader.NewReader(cfg.Input); err == nil {
		s.reader = r
	} else {
		s.rawIn = cfg.Input
	}

	go s.readLoop()
	if s.outFile != nil {
		notifyWinch(s.winch)
		go s.winchLoop()
	}

	return s, nil
}

// Capabilities returns the immutable capability snapshot taken at open.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Size returns the most recently observed terminal dimensions.
func (s *Session) Size() (width, height int) {
	return s.width, s.height
}

// Writer returns the one-writer gate. All terminal output goes through it.
func (s *Session) Writer() *TermWriter {
	return s.tw
}

// Backlog returns how many parsed events are queued but unread.
func (s *Session) Backlog() int {
	return len(s.events)
}

// ReadEvent returns the next input event, or nil after the deadline with
// no event. A poisoned session surfaces its write error here; a closed
// input yields ErrEndOfInput.
func (s *Session) ReadEvent(deadline time.Duration) (Event, error) {
	if err := s.tw.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	var timeout <-chan time.Time
	if deadline >= 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ev := <-s.events:
		switch e := ev.(type) {
		case inputClosed:
			return nil, ErrEndOfInput
		case parseFailure:
			// InputParseError surfaces once per session; later drops are
			// silent.
			if s.parseLogged.CompareAndSwap(false, true) {
				return nil, &ParseError{Seq: e.seq}
			}
			return nil, nil
		}
		return ev, nil
	case <-timeout:
		return nil, nil
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

// parseFailure is an internal event carrying a dropped sequence.
type parseFailure struct {
	seq []byte
}

func (parseFailure) isEvent() {}

// inputClosed marks end of the input stream.
type inputClosed struct{}

func (inputClosed) isEvent() {}

// readLoop pulls raw bytes and runs them through the parser. A second
// select arm resolves a pending lone ESC after escapeTimeout.
func (s *Session) readLoop() {
	raw := make(chan []byte, 8)
	go func() {
		defer close(raw)
		buf := make([]byte, 4096)
		var src io.Reader = s.rawIn
		if s.reader != nil {
			src = s.reader
		}
		for {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case raw <- chunk:
				case <-s.done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	flush := time.NewTimer(escapeTimeout)
	flush.Stop()
	defer flush.Stop()

	lastErrs := 0
	for {
		select {
		case chunk, ok := <-raw:
			if !ok {
				for _, ev := range s.parser.Flush() {
					s.deliver(ev)
				}
				s.deliver(inputClosed{})
				return
			}
			for _, ev := range s.parser.Feed(chunk) {
				s.deliver(ev)
			}
			if n := s.parser.Errors(); n > lastErrs {
				lastErrs = n
				s.deliver(parseFailure{})
			}
			flush.Stop()
			if len(s.parser.pending) > 0 {
				flush.Reset(escapeTimeout)
			}
		case <-flush.C:
			for _, ev := range s.parser.Flush() {
				s.deliver(ev)
			}
		case <-s.done:
			return
		}
	}
}

// deliver forwards an event unless the session is closing.
func (s *Session) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// winchLoop converts SIGWINCH into resize events.
func (s *Session) winchLoop() {
	for {
		select {
		case <-s.winch:
			w, h, err := terminalSize(int(s.outFile.Fd()))
			if err != nil || w <= 0 || h <= 0 {
				continue
			}
			s.width, s.height = w, h
			s.deliver(ResizeEvent{Width: w, Height: h})
		case <-s.done:
			return
		}
	}
}

// Close releases the terminal. Idempotent; always attempts the full
// restoration sequence even on a poisoned session. The teardown order is
// fixed: sync-end, hyperlink close, mouse off, paste off, focus off,
// alt-screen exit, cursor show, SGR reset, then cooked mode.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		stopWinch(s.winch)
		if s.reader != nil {
			s.reader.Cancel()
		}

		var out []byte
		if s.caps.SyncOutput {
			out = append(out, ansiSyncEnd...)
		}
		if s.caps.Hyperlinks {
			out = append(out, ansiLinkClose...)
		}
		if s.mouseOn {
			out = append(out, ansiMouseOff...)
		}
		if s.pasteOn {
			out = append(out, ansiPasteOff...)
		}
		if s.focusOn {
			out = append(out, ansiFocusOff...)
		}
		if s.altEntered {
			out = append(out, ansiAltExit...)
		}
		out = append(out, ansiCursorShow...)
		out = append(out, ansiReset...)
		s.tw.writeRaw(out)

		s.restore()
		s.closeErr = s.tw.Err()
	})
	return s.closeErr
}

// restore leaves raw mode.
func (s *Session) restore() {
	if s.saved != nil && s.inFile != nil {
		term.Restore(int(s.inFile.Fd()), s.saved)
		s.saved = nil
	}
}

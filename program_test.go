package loom

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptModel is a configurable test model.
type scriptModel struct {
	init    func() Cmd
	update  func(Msg) Cmd
	view    func(*Frame)
	subs    func() []Subscription
	msgs    []Msg
	renders int
}

func (m *scriptModel) Init() Cmd {
	if m.init != nil {
		return m.init()
	}
	return nil
}

func (m *scriptModel) Update(msg Msg) Cmd {
	m.msgs = append(m.msgs, msg)
	if m.update != nil {
		return m.update(msg)
	}
	return nil
}

func (m *scriptModel) View(f *Frame) {
	m.renders++
	if m.view != nil {
		m.view(f)
	}
}

func (m *scriptModel) Subscriptions() []Subscription {
	if m.subs != nil {
		return m.subs()
	}
	return nil
}

func TestProgram(t *testing.T) {
	t.Run("ColdStartInlineThenQuit", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		m := &scriptModel{
			update: func(msg Msg) Cmd {
				if _, ok := msg.(KeyEvent); ok {
					return Quit()
				}
				return nil
			},
			view: func(f *Frame) {
				f.Buffer().WriteString(0, 0, "hello", 0, 0, 0)
			},
		}
		cfg := Config{
			Mode:         ModeInline,
			InlineHeight: 5,
			InlineAnchor: AnchorBottom,
			EnableMouse:  true,
			EnablePaste:  true,
			EnableFocus:  true,
			Input:        strings.NewReader("q"),
			Output:       &out,
		}
		if err := NewProgram(m, cfg).Run(); err != nil {
			t.Fatal(err)
		}

		s := out.String()

		// Mode enables precede the first frame; teardown follows it. Each
		// sequence must occur after the previous one.
		order := []string{
			ansiPasteOn, ansiMouseOn, ansiSyncBegin, "hello", ansiSyncEnd,
			ansiMouseOff, ansiPasteOff, ansiFocusOff, ansiCursorShow, ansiReset,
		}
		rest := s
		for _, seq := range order {
			i := strings.Index(rest, seq)
			if i < 0 {
				t.Fatalf("output missing %q after prior sequences in %q", seq, s)
			}
			rest = rest[i+len(seq):]
		}

		// Inline band on a default 80x24 terminal: rows 20..24 only.
		if !strings.Contains(s, "\x1b[20;1H") {
			t.Error("band origin row not addressed")
		}
		for _, row := range []string{"\x1b[1;", "\x1b[10;", "\x1b[19;"} {
			if strings.Contains(s, row) {
				t.Errorf("frame touched row outside the band: %q", row)
			}
		}
		if m.renders == 0 {
			t.Error("no frame rendered before quit")
		}
	})

	t.Run("InputOrdering", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		m := &scriptModel{}
		cfg := Config{Input: strings.NewReader("abc"), Output: &out}
		if err := NewProgram(m, cfg).Run(); err != nil {
			t.Fatal(err)
		}

		var runes []rune
		for _, msg := range m.msgs {
			if ke, ok := msg.(KeyEvent); ok && ke.Code == KeyRune {
				runes = append(runes, ke.Rune)
			}
		}
		if string(runes) != "abc" {
			t.Errorf("events delivered as %q, want arrival order", string(runes))
		}
	})

	t.Run("PanicInViewRestoresTerminal", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		m := &scriptModel{
			view: func(f *Frame) {
				panic("widget exploded")
			},
		}
		cfg := Config{Input: strings.NewReader(""), Output: &out}
		err := NewProgram(m, cfg).Run()
		if err == nil || !strings.Contains(err.Error(), "widget exploded") {
			t.Fatalf("panic did not reach the caller: %v", err)
		}

		s := out.String()
		if !strings.HasSuffix(s, ansiReset) {
			t.Error("SGR not reset on panic path")
		}
		if !strings.Contains(s[strings.LastIndex(s, ansiCursorShow):], ansiReset) {
			t.Error("cursor not shown before final reset")
		}
		if strings.Contains(s, ansiSyncBegin) {
			t.Error("partial frame presented despite panic")
		}
	})

	t.Run("TaskResultDelivered", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		block := make(chan struct{})
		defer close(block)

		type doneMsg struct{ v string }
		m := &scriptModel{
			init: func() Cmd {
				return Perform(
					func(ctx context.Context) (any, error) { return "done", nil },
					func(v any, err error) Msg { return doneMsg{v: v.(string)} },
				)
			},
			update: func(msg Msg) Cmd {
				if _, ok := msg.(doneMsg); ok {
					return Quit()
				}
				return nil
			},
		}
		cfg := Config{Input: blockingReader{block}, Output: &out}
		done := make(chan error, 1)
		go func() { done <- NewProgram(m, cfg).Run() }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("task result never delivered")
		}

		found := false
		for _, msg := range m.msgs {
			if d, ok := msg.(doneMsg); ok && d.v == "done" {
				found = true
			}
		}
		if !found {
			t.Error("mapper output not delivered to Update")
		}
	})

	t.Run("TaskFailureDeliveredAsMessage", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		block := make(chan struct{})
		defer close(block)

		type failMsg struct{ err error }
		m := &scriptModel{
			init: func() Cmd {
				return Perform(
					func(ctx context.Context) (any, error) {
						return nil, errors.New("task broke")
					},
					func(v any, err error) Msg { return failMsg{err: err} },
				)
			},
			update: func(msg Msg) Cmd {
				if _, ok := msg.(failMsg); ok {
					return Quit()
				}
				return nil
			},
		}
		cfg := Config{Input: blockingReader{block}, Output: &out}
		done := make(chan error, 1)
		go func() { done <- NewProgram(m, cfg).Run() }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("failing task terminated the runtime: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("failure message never delivered")
		}
	})

	t.Run("SubscriptionDelivery", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		block := make(chan struct{})
		defer close(block)

		ch := make(chan Msg, 1)
		ch <- "from-sub"
		m := &scriptModel{
			update: func(msg Msg) Cmd {
				if msg == Msg("from-sub") {
					return Quit()
				}
				return nil
			},
			subs: func() []Subscription {
				return []Subscription{{Name: "feed", Source: FromChannel(ch)}}
			},
		}
		cfg := Config{Input: blockingReader{block}, Output: &out}
		done := make(chan error, 1)
		go func() { done <- NewProgram(m, cfg).Run() }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("subscription message never delivered")
		}
	})

	t.Run("LogRoutesToSink", func(t *testing.T) {
		quietEnv(t)
		var out, sink bytes.Buffer
		m := &scriptModel{
			update: func(msg Msg) Cmd {
				if ke, ok := msg.(KeyEvent); ok && ke.Rune == 'l' {
					return Batch(Log("in-band line"), Quit())
				}
				return nil
			},
		}
		cfg := Config{Input: strings.NewReader("l"), Output: &out, LogSink: &sink}
		if err := NewProgram(m, cfg).Run(); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(sink.String(), "in-band line") {
			t.Errorf("log sink got %q", sink.String())
		}
		if strings.Contains(out.String(), "in-band line") {
			t.Error("sinked log text leaked onto the terminal")
		}
	})

	t.Run("CtrlCQuits", func(t *testing.T) {
		quietEnv(t)
		var out bytes.Buffer
		m := &scriptModel{}
		cfg := Config{Input: strings.NewReader("\x03"), Output: &out}
		done := make(chan error, 1)
		go func() { done <- NewProgram(m, cfg).Run() }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Ctrl-C did not shut the loop down")
		}
		// The model saw the event before shutdown.
		saw := false
		for _, msg := range m.msgs {
			if ke, ok := msg.(KeyEvent); ok && ke.Mod == ModCtrl && ke.Rune == 'c' {
				saw = true
			}
		}
		if !saw {
			t.Error("Ctrl-C event not delivered to Update")
		}
	})
}

func TestSubSet(t *testing.T) {
	t.Run("ReconcileStartsAndStops", func(t *testing.T) {
		s := newSubSet(time.Second)
		ch := make(chan Msg, 1)
		s.reconcile([]Subscription{{Name: "a", Source: FromChannel(ch)}})
		if _, ok := s.active["a"]; !ok {
			t.Fatal("desired source not started")
		}
		rs := s.active["a"]
		s.reconcile(nil)
		if _, ok := s.active["a"]; ok {
			t.Fatal("dropped source still active")
		}
		select {
		case <-rs.done:
		case <-time.After(time.Second):
			t.Error("stopped source did not terminate")
		}
	})

	t.Run("NoDeliveryAfterStop", func(t *testing.T) {
		s := newSubSet(time.Second)
		ch := make(chan Msg, 4)
		s.reconcile([]Subscription{{Name: "a", Source: FromChannel(ch)}})
		s.reconcile(nil)
		s.stopAll()
		ch <- "late"
		time.Sleep(20 * time.Millisecond)
		if msgs := s.drain(); len(msgs) != 0 {
			t.Errorf("messages delivered after stop: %v", msgs)
		}
	})

	t.Run("TickDelivers", func(t *testing.T) {
		s := newSubSet(time.Second)
		s.reconcile([]Subscription{{
			Name: "tick",
			Source: Every(5*time.Millisecond, func(now time.Time) Msg {
				return "tick"
			}),
		}})
		defer s.stopAll()
		deadline := time.After(time.Second)
		for {
			if msgs := s.drain(); len(msgs) > 0 {
				return
			}
			select {
			case <-deadline:
				t.Fatal("tick never delivered")
			case <-time.After(time.Millisecond):
			}
		}
	})
}

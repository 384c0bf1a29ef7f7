package loom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Model is the application supplied to the runtime. Init runs once; Update
// runs at most once per message; View runs at most once per render cycle
// and must not block or touch the terminal; Subscriptions declares the
// desired set of long-running sources each iteration. There is no
// reentrancy: all four run on the loop goroutine.
type Model interface {
	Init() Cmd
	Update(msg Msg) Cmd
	View(f *Frame)
	Subscriptions() []Subscription
}

// taskPoolSize bounds the Perform worker pool.
const taskPoolSize = 8

// Program drives a Model against a terminal session: one cooperative loop
// pumping events, updating the model, rendering frames through the diff
// engine and presenter, and degrading gracefully under load.
type Program struct {
	model Model
	cfg   Config

	session *Session
	pres    *Presenter
	pool    *GraphemePool

	prev, back *Buffer

	coalescer *resizeCoalescer
	budget    *budgetController
	subs      *subSet

	taskCtx     context.Context
	taskCancel  context.CancelFunc
	taskSem     chan struct{}
	taskResults chan Msg

	quitSig chan os.Signal

	termW, termH int
	originRow    int
	uiW, uiH     int

	quitting    bool
	dirty       bool
	fullRepaint bool
	skipRender  bool
	frames      int

	lastRender time.Duration

	printQueue []string

	now func() time.Time
}

// NewProgram pairs a model with a configuration.
func NewProgram(model Model, cfg Config) *Program {
	cfg = cfg.withDefaults()
	return &Program{
		model:       model,
		cfg:         cfg,
		pool:        NewGraphemePool(),
		coalescer:   newResizeCoalescer(cfg),
		budget:      newBudgetController(cfg.FrameBudget),
		subs:        newSubSet(cfg.TickInterval),
		taskSem:     make(chan struct{}, taskPoolSize),
		taskResults: make(chan Msg, 64),
		quitSig:     make(chan os.Signal, 1),
		now:         time.Now,
	}
}

// Run opens the terminal, drives the loop until the model quits or a fatal
// error occurs, and restores the terminal on every exit path, panics
// included.
func (p *Program) Run() (err error) {
	session, oerr := Open(p.cfg)
	if oerr != nil {
		return oerr
	}
	p.session = session
	defer session.Close()

	defer func() {
		if r := recover(); r != nil {
			// Best-effort cooked-mode restore through /dev/tty first: it
			// works even if the session's own output path is wedged. The
			// deferred Close above still runs after us, emitting the
			// orderly teardown before the error reaches the caller.
			EmergencyRestore()
			err = fmt.Errorf("loom: panic in program: %v", r)
		}
	}()

	p.taskCtx, p.taskCancel = context.WithCancel(context.Background())
	defer p.taskCancel()

	notifyQuit(p.quitSig)

	p.termW, p.termH = session.Size()
	p.layout()
	p.pres = NewPresenter(session.Writer(), session.Capabilities(), p.pool)
	p.pres.SetRegion(p.originRow, p.uiH)

	p.prev = NewBuffer(p.uiW, p.uiH)
	p.back = NewBuffer(p.uiW, p.uiH)

	if p.cfg.Mode == ModeInline {
		if perr := p.pres.PreClear(); perr != nil {
			return perr
		}
	}

	p.exec(p.model.Init())
	p.dirty = true

	// Initial frame: the UI is visible before the first input arrives.
	if !p.quitting {
		if rerr := p.render(); rerr != nil {
			return rerr
		}
	}

	for {
		events, rerr := p.drainInput()
		if rerr != nil {
			return rerr
		}

		var msgs []Msg
		if w, h, apply := p.coalescer.Decide(p.now()); apply {
			p.applyResize(w, h)
			msgs = append(msgs, ResizeEvent{Width: w, Height: h})
		}
		for _, ev := range events {
			msgs = append(msgs, Msg(ev))
		}

		// Input events in arrival order, then task results, then
		// subscription messages. This ordering is observable.
		for _, msg := range msgs {
			p.exec(p.model.Update(msg))
			p.dirty = true
		}
		for _, msg := range p.drainTasks() {
			p.exec(p.model.Update(msg))
			p.dirty = true
		}
		for _, msg := range p.subs.drain() {
			p.exec(p.model.Update(msg))
			p.dirty = true
		}

		p.subs.reconcile(p.model.Subscriptions())

		if p.quitting {
			break
		}

		if p.dirty && !p.skipRender {
			if rerr := p.render(); rerr != nil {
				return rerr
			}
		}
		p.skipRender = false

		// Input fairness: when a slow frame left input waiting, the next
		// iteration drains without rendering.
		if p.lastRender > 2*p.cfg.FrameBudget && p.session.Backlog() > 0 {
			p.skipRender = true
		}

		p.frames++
		if p.frames%p.cfg.GCIntervalFrames == 0 {
			p.pool.GC()
		}
	}

	p.subs.stopAll()

	if p.cfg.Mode == ModeInline {
		p.pres.Park()
	}
	return session.Close()
}

// layout computes the drawing region from the terminal size and mode.
func (p *Program) layout() {
	switch p.cfg.Mode {
	case ModeAlt:
		p.originRow = 0
		p.uiW, p.uiH = p.termW, p.termH
	default:
		h := p.cfg.InlineHeight
		if h > p.termH {
			h = p.termH
		}
		p.uiW, p.uiH = p.termW, h
		if p.cfg.InlineAnchor == AnchorBottom {
			p.originRow = p.termH - h
		} else {
			p.originRow = 0
		}
	}
}

// drainInput reads pending events with a short deadline, longer when the
// loop is idle. Resize events feed the coalescer rather than the model.
func (p *Program) drainInput() ([]Event, error) {
	deadline := time.Millisecond
	if !p.dirty && !p.coalescer.Pending() {
		deadline = p.cfg.FrameBudget
	}

	var events []Event
	for i := 0; i < 64; i++ {
		select {
		case <-p.quitSig:
			p.quitting = true
			return events, nil
		default:
		}

		ev, err := p.session.ReadEvent(deadline)
		deadline = 0
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				p.println(pe.Error())
				continue
			}
			if errors.Is(err, ErrEndOfInput) {
				p.quitting = true
				return events, nil
			}
			return events, err
		}
		if ev == nil {
			return events, nil
		}

		switch e := ev.(type) {
		case ResizeEvent:
			p.coalescer.Note(e.Width, e.Height, p.now())
		case KeyEvent:
			events = append(events, ev)
			if e.Code == KeyRune && e.Rune == 'c' && e.Mod == ModCtrl {
				// Ctrl-C takes the same shutdown path as SIGTERM, after
				// the model has seen the event.
				p.quitting = true
			}
		default:
			events = append(events, ev)
		}
	}
	return events, nil
}

// drainTasks collects completed Perform results without blocking.
func (p *Program) drainTasks() []Msg {
	var msgs []Msg
	for {
		select {
		case m := <-p.taskResults:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

// render runs one view/diff/present cycle and samples the frame budget.
func (p *Program) render() error {
	start := p.now()

	p.flushPrintQueue()

	if DebugFullRedraw {
		p.fullRepaint = true
	}
	if p.fullRepaint {
		// An impossible cell in every slot of prev forces every position
		// to differ on the next diff.
		p.prev.Fill(Cell{})
		p.pres.Reset()
		p.fullRepaint = false
	}

	p.back.Clear()
	frame := newFrame(p.back, p.pool, p.budget.Level())
	p.model.View(frame)

	runs := DiffDirty(p.prev, p.back)
	err := p.pres.Present(p.back, runs, frame.links, frame.cursor)

	// The frame's intern references die with it; re-interning next frame
	// revives the slot before GC can sweep it.
	for _, id := range frame.interned {
		p.pool.Release(id)
	}

	if err != nil {
		if p.session.Writer().Err() != nil {
			return err // poisoned: surfaced, teardown still runs
		}
		p.fullRepaint = true
		return nil
	}

	p.prev.CopyFrom(p.back)
	p.back.ClearDirty()
	p.dirty = false

	p.lastRender = p.now().Sub(start)
	p.budget.Sample(p.lastRender)

	if DebugFlush {
		st := p.pres.LastStats()
		fmt.Fprintf(os.Stderr, "flush: %d runs, %d cells, %d bytes, %v\n",
			st.Runs, st.Cells, st.Bytes, p.lastRender)
	}
	return nil
}

// applyResize rebuilds the drawing surfaces at the settled size. The first
// frame afterwards is a full repaint, so no stale glyphs survive a shrink
// and no intermediate size is ever presented.
func (p *Program) applyResize(w, h int) {
	p.termW, p.termH = w, h
	p.layout()
	p.pres.SetRegion(p.originRow, p.uiH)
	p.prev = NewBuffer(p.uiW, p.uiH)
	p.back = NewBuffer(p.uiW, p.uiH)
	p.fullRepaint = true
	p.dirty = true
	if p.cfg.Mode == ModeInline {
		p.pres.PreClear()
	}
}

// exec carries out a command tree.
func (p *Program) exec(c Cmd) {
	switch c := c.(type) {
	case nil:
	case quitCmd:
		p.quitting = true
	case batchCmd:
		for _, sub := range c {
			p.exec(sub)
		}
	case performCmd:
		p.runTask(c)
	case logCmd:
		p.println(c.text)
	}
}

// runTask schedules a Perform command on the bounded runner. A panicking
// task becomes an error through the mapper; the runtime never dies with it.
func (p *Program) runTask(c performCmd) {
	go func() {
		select {
		case p.taskSem <- struct{}{}:
			defer func() { <-p.taskSem }()
		case <-p.taskCtx.Done():
			return
		}

		var msg Msg
		func() {
			defer func() {
				if r := recover(); r != nil {
					msg = c.mapv(nil, fmt.Errorf("loom: task panic: %v", r))
				}
			}()
			msg = c.mapv(c.task(p.taskCtx))
		}()

		select {
		case p.taskResults <- msg:
		case <-p.taskCtx.Done():
			// Results of tasks still in flight at quit are discarded.
		}
	}()
}

// println queues a line for in-band logging.
func (p *Program) println(text string) {
	if p.cfg.LogSink != nil {
		fmt.Fprintln(p.cfg.LogSink, text)
		return
	}
	if p.cfg.Mode == ModeInline && p.originRow > 0 {
		p.printQueue = append(p.printQueue, text)
	}
	// Alt mode with no sink: dropped rather than corrupting the screen.
}

// flushPrintQueue writes queued log lines on the row above the inline
// band, between frames so presenter output never interleaves with them.
func (p *Program) flushPrintQueue() {
	if len(p.printQueue) == 0 {
		return
	}
	var buf []byte
	for _, line := range p.printQueue {
		buf = appendCUP(buf, p.originRow, 1)
		buf = append(buf, ansiClearLine...)
		buf = append(buf, ansiReset...)
		buf = append(buf, line...)
	}
	p.printQueue = p.printQueue[:0]
	p.session.Writer().Write(buf)
	p.pres.Reset()
}

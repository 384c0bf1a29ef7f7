// Command demo is a minimal smoke test for the loom runtime: an inline
// five-row band showing a counter, a styled status line and a hyperlink.
// Press q or Ctrl-C to quit.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	loom "github.com/kungfusheep/loom"
)

type tickMsg time.Time

type fetchedMsg string

type model struct {
	ticks   int
	fetched string
	focused bool
	width   int
}

func (m *model) Init() loom.Cmd {
	return loom.Perform(
		func(ctx context.Context) (any, error) {
			select {
			case <-time.After(300 * time.Millisecond):
				return "task runner online", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		func(v any, err error) loom.Msg {
			if err != nil {
				return fetchedMsg(err.Error())
			}
			return fetchedMsg(v.(string))
		},
	)
}

func (m *model) Update(msg loom.Msg) loom.Cmd {
	switch msg := msg.(type) {
	case loom.KeyEvent:
		if msg.Code == loom.KeyRune && msg.Rune == 'q' {
			return loom.Quit()
		}
		if msg.Code == loom.KeyRune && msg.Rune == 'l' {
			return loom.Log(fmt.Sprintf("tick count was %d", m.ticks))
		}
	case loom.ResizeEvent:
		m.width = msg.Width
	case loom.FocusEvent:
		m.focused = msg.Gained
	case tickMsg:
		m.ticks++
	case fetchedMsg:
		m.fetched = string(msg)
	}
	return nil
}

func (m *model) View(f *loom.Frame) {
	buf := f.Buffer()
	green := loom.RGB(80, 250, 123)
	dim := loom.RGB(98, 114, 164)

	buf.WriteString(0, 0, fmt.Sprintf("ticks: %d", m.ticks), green, 0, loom.FlagBold)
	buf.WriteString(0, 1, m.fetched, 0, 0, 0)

	link := f.RegisterLink("https://github.com/kungfusheep/loom")
	c := loom.NewCell(' ', dim, 0, 0)
	c.Link = link
	x := 0
	for _, r := range "loom" {
		c.Content = uint32(r)
		buf.Set(x, 2, c)
		x++
	}

	star := f.InternGrapheme("⭐")
	buf.Set(x+1, 2, loom.Cell{Content: uint32(star)})

	status := "unfocused"
	if m.focused {
		status = "focused"
	}
	buf.WriteString(0, 3, status+"  (q quits, l logs)", dim, 0, 0)
}

func (m *model) Subscriptions() []loom.Subscription {
	return []loom.Subscription{
		{Name: "tick", Source: loom.Every(time.Second, func(t time.Time) loom.Msg {
			return tickMsg(t)
		})},
	}
}

func main() {
	cfg := loom.Config{
		Mode:         loom.ModeInline,
		InlineHeight: 5,
		InlineAnchor: loom.AnchorBottom,
		EnableMouse:  false,
		EnableFocus:  true,
		EnablePaste:  true,
	}
	if err := loom.NewProgram(&model{}, cfg).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

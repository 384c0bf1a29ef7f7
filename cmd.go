package loom

import "context"

// Msg is a message delivered to Model.Update. Input events are delivered
// as their concrete Event types; tasks and subscriptions produce whatever
// the application maps them to.
type Msg interface{}

// Cmd is a side effect requested by the model. nil means none.
type Cmd interface {
	isCmd()
}

type quitCmd struct{}

func (quitCmd) isCmd() {}

// Quit requests an orderly shutdown: pending input is drained,
// subscriptions stop, the terminal is restored.
func Quit() Cmd {
	return quitCmd{}
}

type batchCmd []Cmd

func (batchCmd) isCmd() {}

// Batch groups commands; they are executed in order.
func Batch(cmds ...Cmd) Cmd {
	out := make(batchCmd, 0, len(cmds))
	for _, c := range cmds {
		if c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type performCmd struct {
	task func(context.Context) (any, error)
	mapv func(any, error) Msg
}

func (performCmd) isCmd() {}

// Perform enqueues task on the runner and continues the loop. On
// completion, mapper turns the result (or error) into a message delivered
// on a later iteration. A failing task never terminates the runtime.
func Perform(task func(context.Context) (any, error), mapper func(any, error) Msg) Cmd {
	return performCmd{task: task, mapv: mapper}
}

type logCmd struct {
	text string
}

func (logCmd) isCmd() {}

// Log routes a line of text to Config.LogSink when one is set, in either
// mode. Without a sink the line goes through the one-writer gate onto the
// row above an inline band; in alt mode, or when the band starts at the top
// row, it is dropped.
func Log(text string) Cmd {
	return logCmd{text: text}
}

package loom

import "os"

// Debug switches, env-var gated so a stuck frame can be diagnosed without
// rebuilding. Output goes to stderr, never the terminal writer.
var (
	// DebugFlush dumps per-frame flush statistics (set LOOM_DEBUG_FLUSH=1).
	DebugFlush bool

	// DebugFullRedraw forces a full repaint every frame instead of
	// diff-based updates (set LOOM_FULL_REDRAW=1).
	DebugFullRedraw bool
)

func init() {
	if os.Getenv("LOOM_DEBUG_FLUSH") != "" {
		DebugFlush = true
	}
	if os.Getenv("LOOM_FULL_REDRAW") != "" {
		DebugFullRedraw = true
	}
}

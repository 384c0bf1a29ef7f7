package loom

import (
	"os"
	"strings"

	"github.com/muesli/termenv"
)

// ColorDepth is the terminal's detected color capability.
type ColorDepth uint8

const (
	colorAuto ColorDepth = iota // config zero value: no override
	ColorMono
	Color16
	Color256
	ColorTrue
)

func (d ColorDepth) String() string {
	switch d {
	case ColorMono:
		return "mono"
	case Color16:
		return "16"
	case Color256:
		return "256"
	case ColorTrue:
		return "truecolor"
	default:
		return "auto"
	}
}

// Multiplexer identifies a terminal multiplexer sitting between us and the
// real terminal.
type Multiplexer uint8

const (
	MuxNone Multiplexer = iota
	MuxTmux
	MuxScreen
	MuxZellij
)

func (m Multiplexer) String() string {
	switch m {
	case MuxTmux:
		return "tmux"
	case MuxScreen:
		return "screen"
	case MuxZellij:
		return "zellij"
	default:
		return "none"
	}
}

// Capabilities is an immutable snapshot of what the terminal supports,
// taken once at session open.
type Capabilities struct {
	Depth      ColorDepth
	SyncOutput bool
	Hyperlinks bool
	Mouse      bool
	Paste      bool
	Focus      bool
	Mux        Multiplexer
}

// DetectCapabilities reads the process environment and returns a snapshot.
// Missing signals map conservatively: no synchronized output, 16 colors.
func DetectCapabilities() Capabilities {
	caps := detectCapabilities(os.Getenv)
	// termenv reports Ascii when it sees no color signal; keep the
	// conservative 16-color default then. Only NO_COLOR forces mono.
	if depth := mapProfile(termenv.EnvColorProfile()); depth != ColorMono {
		caps.Depth = depth
	}
	if termenv.EnvNoColor() {
		caps.Depth = ColorMono
	}
	return caps
}

// mapProfile converts a termenv color profile to a ColorDepth.
func mapProfile(p termenv.Profile) ColorDepth {
	switch p {
	case termenv.TrueColor:
		return ColorTrue
	case termenv.ANSI256:
		return Color256
	case termenv.ANSI:
		return Color16
	default:
		return ColorMono
	}
}

// detectCapabilities holds the env-keyed logic, split out so tests can
// inject an environment. Color depth is filled by the caller.
func detectCapabilities(getenv func(string) string) Capabilities {
	term := getenv("TERM")
	prog := getenv("TERM_PROGRAM")

	caps := Capabilities{
		Depth: Color16,
		Mouse: true,
		Paste: true,
		Focus: true,
	}

	switch {
	case getenv("TMUX") != "":
		caps.Mux = MuxTmux
	case getenv("ZELLIJ") != "":
		caps.Mux = MuxZellij
	case getenv("STY") != "" || strings.HasPrefix(term, "screen"):
		caps.Mux = MuxScreen
	}

	// Synchronized output (mode 2026): only terminals known to implement
	// it; anything else stays off and frames go out unbracketed.
	switch {
	case getenv("KITTY_WINDOW_ID") != "":
		caps.SyncOutput = true
	case prog == "WezTerm" || prog == "ghostty" || prog == "iTerm.app":
		caps.SyncOutput = true
	case strings.Contains(term, "kitty") || strings.Contains(term, "foot") ||
		strings.Contains(term, "contour") || strings.Contains(term, "ghostty"):
		caps.SyncOutput = true
	}

	// OSC 8 hyperlinks. GNU screen mangles OSC payloads, so links are off
	// behind it.
	switch {
	case caps.Mux == MuxScreen:
		caps.Hyperlinks = false
	case getenv("KITTY_WINDOW_ID") != "":
		caps.Hyperlinks = true
	case prog == "WezTerm" || prog == "ghostty" || prog == "iTerm.app" ||
		prog == "vscode" || prog == "Hyper":
		caps.Hyperlinks = true
	case strings.Contains(term, "kitty") || strings.Contains(term, "foot") ||
		strings.Contains(term, "ghostty"):
		caps.Hyperlinks = true
	}

	if term == "" || term == "dumb" {
		caps.Mouse = false
		caps.Paste = false
		caps.Focus = false
	}

	return caps
}

package loom

// Event is a terminal input event. The concrete types are KeyEvent,
// MouseEvent, ResizeEvent, PasteEvent and FocusEvent. Events are delivered
// to the application as messages.
type Event interface {
	isEvent()
}

// Modifier is a bitmask of held modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModAlt
	ModCtrl
	ModSuper
)

// KeyEvent is a key press (or, on terminals that report it, release).
// For KeyRune the decoded character is in Rune.
type KeyEvent struct {
	Code    Key
	Rune    rune
	Mod     Modifier
	Release bool
}

func (KeyEvent) isEvent() {}

// MouseAction is what the mouse did.
type MouseAction uint8

const (
	MousePress MouseAction = iota
	MouseRelease
	MouseMove
	MouseDrag
	MouseScroll
)

// MouseButton identifies the button involved.
type MouseButton uint8

const (
	MouseNone MouseButton = iota
	MouseLeft
	MouseMiddle
	MouseRight
	MouseWheelUp
	MouseWheelDown
)

// MouseEvent is an SGR-decoded mouse report. Coordinates are 0-based.
type MouseEvent struct {
	X, Y   int
	Button MouseButton
	Action MouseAction
	Mod    Modifier
}

func (MouseEvent) isEvent() {}

// ResizeEvent reports new terminal dimensions.
type ResizeEvent struct {
	Width, Height int
}

func (ResizeEvent) isEvent() {}

// PasteEvent carries the text of a bracketed paste.
type PasteEvent struct {
	Text string
}

func (PasteEvent) isEvent() {}

// FocusEvent reports the terminal gaining or losing focus.
type FocusEvent struct {
	Gained bool
}

func (FocusEvent) isEvent() {}

//go:build linux || darwin

package loom

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminalSize returns the terminal dimensions for fd.
func terminalSize(fd int) (width, height int, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Col), int(ws.Row), nil
}

// notifyWinch subscribes ch to terminal resize signals.
func notifyWinch(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGWINCH)
}

// stopWinch unsubscribes ch.
func stopWinch(ch chan<- os.Signal) {
	signal.Stop(ch)
}

// notifyQuit subscribes ch to interrupt and termination signals.
func notifyQuit(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
}

// EmergencyRestore puts the terminal back into cooked mode and undoes the
// visible mode switches, best effort. It opens /dev/tty directly so it
// works even when stdin has been redirected or the session's output path
// is wedged; errors are ignored. The runtime calls it from its panic
// recovery before the orderly session teardown runs.
func EmergencyRestore() {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return
	}
	defer tty.Close()

	tty.WriteString(ansiSyncEnd + ansiLinkClose + ansiMouseOff + ansiPasteOff +
		ansiFocusOff + ansiAltExit + ansiCursorShow + ansiReset)

	fd := int(tty.Fd())
	if termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios); err == nil {
		termios.Lflag |= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
		termios.Iflag |= unix.ICRNL
		unix.IoctlSetTermios(fd, ioctlSetTermios, termios)
	}
}

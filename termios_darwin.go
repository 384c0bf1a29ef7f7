//go:build darwin

package loom

import "golang.org/x/sys/unix"

// Darwin termios ioctl requests.
const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
)

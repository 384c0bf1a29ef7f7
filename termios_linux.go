//go:build linux

package loom

import "golang.org/x/sys/unix"

// Linux termios ioctl requests.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

package serialmux

import "io"

// SerialPorter is the minimal interface needed for the hub port, so tests can
// run without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

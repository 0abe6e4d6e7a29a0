package maxsonar

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrDeviceUnavailable is returned when the serial port cannot be opened.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrMalformedFrame is returned when a frame cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Device defines the interface for range sensors (real or mocked).
type Device interface {
	// ReadDistance blocks until one distance in millimeters is decoded or a
	// hard error occurs.
	ReadDistance(ctx context.Context) (uint16, error)
}

// Port is the subset of a serial port used by the sensor.
// go.bug.st/serial ports satisfy it.
type Port interface {
	io.Reader
	io.Closer
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by name.
type Opener func(name string, opts PortOptions) (Port, error)

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

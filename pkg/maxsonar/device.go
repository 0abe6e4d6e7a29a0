package maxsonar

import (
	"context"
	"fmt"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Serial reads distances from a MaxSonar sensor attached to a serial port.
// The port is opened for every reading and closed afterwards, so a sensor that
// disappears and comes back is picked up on the next reading.
type Serial struct {
	port string
	opts PortOptions
	open Opener
	log  *zap.Logger
}

// Option configures a Serial device.
type Option func(*Serial)

// WithOpener replaces the function used to open the port.
func WithOpener(open Opener) Option {
	return func(s *Serial) {
		s.open = open
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Serial) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a new Serial device for the named port.
func New(port string, opts PortOptions, options ...Option) (*Serial, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid port options: %w", err)
	}

	s := &Serial{
		port: port,
		opts: opts,
		open: OpenSerial,
		log:  zap.NewNop(),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// OpenSerial opens a real serial port using go.bug.st/serial.
func OpenSerial(name string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(name, mode)
}

// Ports returns the names of the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// ReadDistance opens the port, decodes one frame and closes the port.
func (s *Serial) ReadDistance(ctx context.Context) (uint16, error) {
	port, err := s.open(s.port, s.opts)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q: %v", ErrDeviceUnavailable, s.port, err)
	}
	defer func() {
		if err := port.Close(); err != nil {
			s.log.Warn("Error closing serial port", zap.String("port", s.port), zap.Error(err))
		}
	}()

	if err := port.SetReadTimeout(s.opts.ReadTimeout); err != nil {
		return 0, fmt.Errorf("failed to set read timeout on %s: %w", s.port, err)
	}

	distance, err := NewFrameReader(port).Next(ctx)
	if err != nil {
		return 0, err
	}

	s.log.Info("Detected distance", zap.Uint16("mm", distance))
	return distance, nil
}

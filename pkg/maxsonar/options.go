package maxsonar

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/cisterna/pkg/config"
)

const (
	// DefaultBaudRate is the RS232/TTL output rate of MaxSonar sensors.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single read from the port.
	DefaultReadTimeout = 100 * time.Millisecond
)

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

// Normalize fills unset values with the MaxSonar line settings (9600 8N1)
// and rejects values the port cannot use.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.Parity == "" {
		o.Parity = "N"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	o.Parity = strings.ToUpper(o.Parity)

	switch {
	case o.DataBits < 5 || o.DataBits > 8:
		return o, fmt.Errorf("data bits %d out of range 5..8", o.DataBits)
	case o.StopBits != 1 && o.StopBits != 2:
		return o, fmt.Errorf("stop bits %d: want 1 or 2", o.StopBits)
	}
	if _, ok := parities[o.Parity]; !ok {
		return o, fmt.Errorf("parity %q: want N, E or O", o.Parity)
	}
	return o, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	stop := serial.OneStopBit
	if o.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		StopBits: stop,
		Parity:   parities[o.Parity],
	}, nil
}

// OptionsFromConfig extracts the serial settings from the detection config.
func OptionsFromConfig(cfg config.DetectionConfig) PortOptions {
	return PortOptions{
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	}
}

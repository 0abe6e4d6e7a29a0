// Package measurement holds the most recent distance read from the sensor.
package measurement

import (
	"errors"
	"sync/atomic"
)

// ErrNoDetection is returned while the cell still holds the no-detection sentinel.
var ErrNoDetection = errors.New("fluid surface not detected or too far away")

// Cell is a single distance in millimeters, written by one poller and read by
// any number of queries without locking. Reads observe some completed write,
// never a torn value.
type Cell struct {
	mm       atomic.Uint64
	sentinel uint64
}

// NewCell creates a cell holding the no-detection sentinel.
func NewCell(sentinel uint64) *Cell {
	c := &Cell{sentinel: sentinel}
	c.mm.Store(sentinel)
	return c
}

// Store publishes a decoded distance.
func (c *Cell) Store(mm uint64) {
	c.mm.Store(mm)
}

// Load returns the raw cell value, which may be the sentinel.
func (c *Cell) Load() uint64 {
	return c.mm.Load()
}

// Sentinel returns the no-detection value.
func (c *Cell) Sentinel() uint64 {
	return c.sentinel
}

// Current returns the stored distance, or ErrNoDetection when the cell holds
// the sentinel. A sensor reading equal to the sentinel is reported as no detection.
func (c *Cell) Current() (uint64, error) {
	mm := c.mm.Load()
	if mm == c.sentinel {
		return 0, ErrNoDetection
	}
	return mm, nil
}

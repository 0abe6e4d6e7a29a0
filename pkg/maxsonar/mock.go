package maxsonar

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/itohio/cisterna/pkg/config"
)

// Mock simulates a MaxSonar sensor for testing and development.
// It renders frames exactly as the sensor emits them and decodes them with the
// same FrameReader used for real ports.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.Mutex
	startTime time.Time
	now       func() time.Time
	previous  []byte // last frame sent, its tail prefixes the next stream
}

// NewMock creates a new mocked sensor instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			MinDistance: 0.5,
			MaxDistance: 3.0,
			Period:      10 * time.Minute,
			NoiseLevel:  0.005,
			ChunkSize:   3,
		}
	}

	return &Mock{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// ReadDistance simulates one reading.
func (m *Mock) ReadDistance(ctx context.Context) (uint16, error) {
	m.mu.Lock()
	mm := m.distanceMillimeters()
	frame := []byte(fmt.Sprintf("%c%04d%c", FrameMarker, mm, FrameTerminator))

	// Joining the stream mid-frame: start with the tail of the previous frame.
	wire := make([]byte, 0, 2*FrameSize+2)
	if len(m.previous) > 2 {
		wire = append(wire, m.previous[2:]...)
	}
	wire = append(wire, frame...)
	m.previous = frame
	m.mu.Unlock()

	chunk := m.cfg.ChunkSize
	if chunk <= 0 {
		chunk = len(wire)
	}
	return NewFrameReader(&chunkedReader{data: wire, chunk: chunk}).Next(ctx)
}

// distanceMillimeters generates the simulated surface distance.
func (m *Mock) distanceMillimeters() int {
	elapsed := m.now().Sub(m.startTime)

	span := m.cfg.MaxDistance - m.cfg.MinDistance
	phase := 0.0
	if m.cfg.Period > 0 {
		phase = 2 * math.Pi * elapsed.Seconds() / m.cfg.Period.Seconds()
	}

	// Slow fill/drain cycle
	distance := m.cfg.MinDistance + span*(0.5+0.5*math.Cos(phase))

	// Add noise
	noise := (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
		math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
		m.cfg.NoiseLevel * 0.5
	distance += noise

	mm := int(math.Round(distance * 1000))
	if mm < 0 {
		mm = 0
	} else if mm > 9999 {
		mm = 9999
	}
	return mm
}

// chunkedReader delivers data a few bytes at a time with a timed out read
// between chunks, like a slow serial line.
type chunkedReader struct {
	data    []byte
	chunk   int
	stalled bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	if c.stalled {
		c.stalled = false
		return 0, nil
	}
	c.stalled = true

	n := min(c.chunk, len(p), len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

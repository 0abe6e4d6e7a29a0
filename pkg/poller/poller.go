package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/cisterna/pkg/maxsonar"
	"github.com/itohio/cisterna/pkg/measurement"
)

// Config is the runtime config the poller needs.
type Config struct {
	Interval time.Duration // Pause between the end of one cycle and the start of the next
}

// Stats summarizes polling activity.
type Stats struct {
	Successes  uint64    `json:"successes"`
	Failures   uint64    `json:"failures"`
	LastUpdate time.Time `json:"last_update"` // Zero until the first successful reading
	LastError  string    `json:"last_error,omitempty"`
}

// Poller reads the sensor on a fixed interval and publishes every decoded
// distance into the measurement cell. Failures are logged and the cell keeps
// its previous value. There is no backoff and no retry limit.
type Poller struct {
	cfg    Config
	device maxsonar.Device
	cell   *measurement.Cell
	log    *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	stats Stats
}

// New creates a poller. The poller is the only writer of cell.
func New(cfg Config, device maxsonar.Device, cell *measurement.Cell, log *zap.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if device == nil {
		return nil, errors.New("poller: device required")
	}
	if cell == nil {
		return nil, errors.New("poller: measurement cell required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Poller{
		cfg:    cfg,
		device: device,
		cell:   cell,
		log:    log,
		now:    time.Now,
	}, nil
}

// PollOnce performs exactly one poll cycle.
func (p *Poller) PollOnce(ctx context.Context) error {
	distance, err := p.device.ReadDistance(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.log.Error("Reading distance from sensor failed", zap.Error(err))

		p.mu.Lock()
		p.stats.Failures++
		p.stats.LastError = err.Error()
		p.mu.Unlock()
		return err
	}

	p.cell.Store(uint64(distance))
	p.log.Info("Update current distance", zap.Uint16("mm", distance))

	p.mu.Lock()
	p.stats.Successes++
	p.stats.LastUpdate = p.now()
	p.mu.Unlock()

	return nil
}

// Run polls until ctx is done. The interval is measured from the end of one
// cycle to the start of the next.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("Poller started", zap.Duration("interval", p.cfg.Interval))
	defer p.log.Info("Poller stopped")

	for {
		_ = p.PollOnce(ctx)

		if !sleepWithContext(ctx, p.cfg.Interval) {
			return
		}
	}
}

// Stats returns a copy of the polling statistics.
func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package cistern

import (
	"go.uber.org/zap"

	"github.com/itohio/cisterna/pkg/measurement"
)

// Service answers state queries from the shared measurement cell.
// It never blocks on the poller.
type Service struct {
	cell     *measurement.Cell
	rng      Range
	geometry Geometry
	log      *zap.Logger
}

// NewService creates a query service over cell.
func NewService(cell *measurement.Cell, rng Range, geometry Geometry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cell:     cell,
		rng:      rng,
		geometry: geometry,
		log:      log,
	}
}

// State returns the current fill state, or measurement.ErrNoDetection while
// no valid reading is available.
func (s *Service) State() (State, error) {
	mm, err := s.cell.Current()
	if err != nil {
		return State{}, err
	}

	distance := MillimetersToMeters(mm)
	if nd, out := Normalize(distance, s.rng); out {
		s.log.Warn("Detected distance is out of bounds",
			zap.Float64("distance_m", distance),
			zap.Stringer("range", s.rng),
			zap.Float64("normalized_m", nd),
		)
	}

	return ComputeState(distance, s.rng, s.geometry), nil
}

// Geometry returns the static tank geometry.
func (s *Service) Geometry() Geometry {
	return s.geometry
}

// Distance returns the raw cell value and whether it is a valid detection.
func (s *Service) Distance() (mm uint64, detected bool) {
	mm = s.cell.Load()
	return mm, mm != s.cell.Sentinel()
}

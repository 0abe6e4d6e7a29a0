package cistern

import (
	"fmt"

	"github.com/itohio/cisterna/pkg/config"
)

// Geometry describes the tank.
type Geometry struct {
	BaseArea float64 `json:"base_area"` // Cross-sectional area (m²)
}

// Range is the usable measurement range in meters.
type Range struct {
	Min float64
	Max float64
}

func (r Range) String() string {
	return fmt.Sprintf("[%g m, %g m]", r.Min, r.Max)
}

// State is the fill state derived from one distance.
type State struct {
	Level    float64 `json:"level"`    // Normalized level in [0, 1]
	Quantity float64 `json:"quantity"` // Volume (m³)
}

// GeometryFromConfig extracts the tank geometry.
func GeometryFromConfig(cfg *config.Config) Geometry {
	return Geometry{BaseArea: cfg.Geometry.BaseArea}
}

// RangeFromConfig extracts the measurement range.
func RangeFromConfig(cfg *config.Config) Range {
	return Range{Min: cfg.Detection.Range.Min, Max: cfg.Detection.Range.Max}
}

// MillimetersToMeters converts a raw sensor distance to meters.
func MillimetersToMeters(mm uint64) float64 {
	return float64(mm) / 1000.0
}

// Normalize clamps a distance into the range.
// The second result reports whether the distance was out of bounds.
func Normalize(distance float64, r Range) (float64, bool) {
	nd := max(distance, r.Min)
	nd = min(nd, r.Max)
	return nd, distance < r.Min || distance > r.Max
}

// ComputeState calculates the fill state for a distance in meters.
// Formula: level = (d - min) / (max - min), quantity = (d - min) * base_area
func ComputeState(distance float64, r Range, g Geometry) State {
	nd, _ := Normalize(distance, r)
	l := nd - r.Min
	return State{
		Level:    l / (r.Max - r.Min),
		Quantity: l * g.BaseArea,
	}
}

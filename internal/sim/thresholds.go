package sim

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// ThresholdField assigns a happiness threshold to each grid position.
// Agents sample the field once, at the cell they are seeded into.
type ThresholdField interface {
	At(coord Coord) float64
}

// UniformThreshold gives every agent the same threshold.
type UniformThreshold float64

// At returns the uniform threshold regardless of position.
func (u UniformThreshold) At(Coord) float64 {
	return float64(u)
}

// NoiseThreshold varies the threshold smoothly across the grid using
// simplex noise, so tolerance clusters spatially instead of being uniform.
type NoiseThreshold struct {
	noise    opensimplex.Noise
	scale    float64
	min, max float64
}

// NewNoiseThreshold creates a threshold field in [min, max] sampled from
// normalized simplex noise at the given spatial scale.
func NewNoiseThreshold(seed int64, scale, min, max float64) *NoiseThreshold {
	return &NoiseThreshold{
		noise: opensimplex.NewNormalized(seed),
		scale: scale,
		min:   min,
		max:   max,
	}
}

// At samples the field at a grid coordinate.
func (n *NoiseThreshold) At(coord Coord) float64 {
	v := n.noise.Eval2(float64(coord.X)*n.scale, float64(coord.Y)*n.scale)
	return n.min + v*(n.max-n.min)
}

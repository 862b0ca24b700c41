// Package detection simulates the cone sensor of the vehicle.
//
// A Model receives every cone of a map in the global frame and returns what the sensor reports,
// still in the global frame. Models may drop, move, relabel or invent cones.
package detection

import (
	"errors"
	"fmt"
	"math"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/geometry"
	"github.com/go-gl/mathgl/mgl64"
)

// Phantom is the source index of a detection that matches no input cone.
const Phantom = -1

var ErrInvalidParameter = errors.New("invalid detection parameter")

// ConfigError reports invalid model parameters.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid detection config %v: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidParameter
}

// Detections is the output of a Model. The three slices are index aligned.
// Sources[i] is the index in the input of the cone behind detection i, or Phantom.
type Detections struct {
	Positions []mgl64.Vec2
	Types     []cone.Type
	Sources   []int
}

func (d *Detections) Len() int {
	return len(d.Positions)
}

func (d *Detections) add(p mgl64.Vec2, t cone.Type, source int) {
	d.Positions = append(d.Positions, p)
	d.Types = append(d.Types, t)
	d.Sources = append(d.Sources, source)
}

// Model decides which cones the sensor reports for a vehicle at pos heading along dir.
// positions and types have the same length.
type Model interface {
	Detect(pos, dir mgl64.Vec2, positions []mgl64.Vec2, types []cone.Type) Detections
}

// Ranged is implemented by models that never report an input cone farther than MaxRange
// meters from the vehicle. Callers may skip such cones before calling Detect.
type Ranged interface {
	MaxRange() float64
}

// Mask flags the points strictly closer than sightRange and strictly within sightAngle/2 radians
// of dir. A point at the vehicle position has no direction and is never visible.
func Mask(pos, dir mgl64.Vec2, sightRange, sightAngle float64, points []mgl64.Vec2) []bool {
	mask := make([]bool, len(points))
	half := sightAngle / 2
	for i, p := range points {
		v := p.Sub(pos)
		dist := v.Len()
		if dist == 0 || dist >= sightRange {
			continue
		}
		mask[i] = geometry.AngleBetween(dir, v) < half
	}
	return mask
}

// Conical is the basic field of view sensor: range in meters, full opening angle in radians.
type Conical struct {
	Range float64
	Angle float64
}

// NewConical builds a conical model, the angle is given in degrees.
func NewConical(detectionRange, angleDegrees float64) (*Conical, error) {
	if !(detectionRange > 0) || math.IsInf(detectionRange, 0) {
		return nil, &ConfigError{Field: "range", Reason: fmt.Sprintf("%v must be a positive finite distance", detectionRange)}
	}
	if !(angleDegrees > 0) || angleDegrees > 360 {
		return nil, &ConfigError{Field: "angle", Reason: fmt.Sprintf("%v must be in (0, 360] degrees", angleDegrees)}
	}
	return &Conical{Range: detectionRange, Angle: angleDegrees * math.Pi / 180}, nil
}

func (c *Conical) MaxRange() float64 {
	return c.Range
}

func (c *Conical) Detect(pos, dir mgl64.Vec2, positions []mgl64.Vec2, types []cone.Type) Detections {
	var d Detections
	for i, visible := range Mask(pos, dir, c.Range, c.Angle, positions) {
		if visible {
			d.add(positions[i], types[i], i)
		}
	}
	return d
}

func (c *Conical) String() string {
	return fmt.Sprintf("conical(range=%vm, angle=%.1fdeg)", c.Range, c.Angle*180/math.Pi)
}

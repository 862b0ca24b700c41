// Package tick turns one pair of decoded telemetry packets into a processed snapshot.
package tick

import (
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/geometry"
	"github.com/cyrilix/robocar-lfsd/pkg/outsim"
	"github.com/go-gl/mathgl/mgl64"
)

// ConeSource returns the cones visible from a pose, in the vehicle frame.
type ConeSource interface {
	VisibleCones(pos, dir mgl64.Vec2) []cone.Observation
}

// Snapshot is the immutable result of one tick.
type Snapshot struct {
	Timestamp time.Time
	// smoothed, in seconds
	DeltaT float64

	Vehicle *outsim.Vehicle
	Gauge   *outsim.Gauge

	VisibleCones        []cone.Observation
	LocalVelocity       mgl64.Vec3
	LocalAcceleration   mgl64.Vec3
	AngularAcceleration mgl64.Vec3
}

// Processor keeps the state carried between ticks. It is not safe for concurrent use.
type Processor struct {
	cones    ConeSource
	smoother DeltaSmoother

	last            time.Time
	previousAngular mgl64.Vec3
}

func NewProcessor(cones ConeSource) *Processor {
	return &Processor{cones: cones}
}

// Process builds the snapshot for packets received at ts. The cone source must have a layout.
func (p *Processor) Process(ts time.Time, vehicle *outsim.Vehicle, gauge *outsim.Gauge) *Snapshot {
	var elapsed float64
	if !p.last.IsZero() {
		elapsed = ts.Sub(p.last).Seconds()
	}
	dt := p.smoother.Smooth(elapsed)

	yaw, pitch, roll := vehicle.Yaw(), vehicle.Pitch(), vehicle.Roll()
	pos := mgl64.Vec2{vehicle.Position.X(), vehicle.Position.Y()}
	visible := p.cones.VisibleCones(pos, geometry.UnitVectorFromAngle(yaw))

	snapshot := Snapshot{
		Timestamp:           ts,
		DeltaT:              dt,
		Vehicle:             vehicle,
		Gauge:               gauge,
		VisibleCones:        visible,
		LocalVelocity:       geometry.WorldToLocal(vehicle.LinearVelocity, pitch, roll, yaw),
		LocalAcceleration:   geometry.WorldToLocal(vehicle.LinearAcceleration, pitch, roll, yaw),
		AngularAcceleration: vehicle.AngularVelocity.Sub(p.previousAngular).Mul(1 / dt),
	}

	p.last = ts
	p.previousAngular = vehicle.AngularVelocity
	return &snapshot
}

// Reset forgets the previous tick, used when the simulator restarts.
func (p *Processor) Reset() {
	p.last = time.Time{}
	p.previousAngular = mgl64.Vec3{}
	p.smoother = DeltaSmoother{}
}

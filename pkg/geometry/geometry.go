// Package geometry holds the frame conversions used between the simulator world frame
// and the vehicle frame. All functions are pure.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rotate rotates every point counter-clockwise by theta radians around the origin.
func Rotate(points []mgl64.Vec2, theta float64) []mgl64.Vec2 {
	m := mgl64.Rotate2D(theta)
	rotated := make([]mgl64.Vec2, len(points))
	for i, p := range points {
		rotated[i] = m.Mul2x1(p)
	}
	return rotated
}

// AngleBetween returns the unsigned angle in [0, pi] between v1 and v2.
// The cosine is clamped to [-1, 1] before acos. A zero length vector yields 0.
func AngleBetween(v1, v2 mgl64.Vec2) float64 {
	norms := v1.Len() * v2.Len()
	if norms == 0 {
		return 0
	}
	return math.Acos(clamp(v1.Dot(v2)/norms, -1, 1))
}

// AngleFromVector returns the heading of v in radians, atan2(y, x).
func AngleFromVector(v mgl64.Vec2) float64 {
	return math.Atan2(v.Y(), v.X())
}

// UnitVectorFromAngle returns (cos theta, sin theta).
func UnitVectorFromAngle(theta float64) mgl64.Vec2 {
	return mgl64.Vec2{math.Cos(theta), math.Sin(theta)}
}

// ToLocalSpace expresses global points in the frame of a vehicle at carPos heading along carDir.
func ToLocalSpace(carPos, carDir mgl64.Vec2, points []mgl64.Vec2) []mgl64.Vec2 {
	m := mgl64.Rotate2D(carAngle(carDir))
	local := make([]mgl64.Vec2, len(points))
	for i, p := range points {
		local[i] = m.Mul2x1(p.Sub(carPos))
	}
	return local
}

// ToGlobalSpace is the inverse of ToLocalSpace.
func ToGlobalSpace(carPos, carDir mgl64.Vec2, points []mgl64.Vec2) []mgl64.Vec2 {
	m := mgl64.Rotate2D(-carAngle(carDir))
	global := make([]mgl64.Vec2, len(points))
	for i, p := range points {
		global[i] = m.Mul2x1(p).Add(carPos)
	}
	return global
}

func carAngle(carDir mgl64.Vec2) float64 {
	return -math.Atan2(carDir.Y(), carDir.X())
}

// WorldToLocal rotates a world frame vector into the vehicle body frame.
// yaw must already point forward (OutSim heading + pi/2).
func WorldToLocal(v mgl64.Vec3, pitch, roll, yaw float64) mgl64.Vec3 {
	sinRoll, cosRoll := math.Sincos(roll)
	sinPitch, cosPitch := math.Sincos(pitch)
	sinYaw, cosYaw := math.Sincos(yaw)

	m := mgl64.Mat3FromRows(
		mgl64.Vec3{
			cosRoll * cosYaw,
			cosPitch*sinYaw + sinPitch*sinRoll*cosYaw,
			sinPitch*sinYaw - cosPitch*sinRoll*cosYaw,
		},
		mgl64.Vec3{
			-cosRoll * sinYaw,
			cosPitch*cosYaw - sinPitch*sinRoll*sinYaw,
			sinPitch*cosYaw + cosPitch*sinRoll*sinYaw,
		},
		mgl64.Vec3{
			sinRoll,
			-sinPitch * cosRoll,
			cosPitch * cosRoll,
		},
	)
	return m.Mul3x1(v)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

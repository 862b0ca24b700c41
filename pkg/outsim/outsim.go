// Package outsim decodes the two UDP telemetry streams of Live for Speed: OutSim (vehicle dynamics)
// and OutGauge (dashboard). Decoders are pure and never keep a reference to the input buffer.
package outsim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	Magic = "LFST"
	// VehicleSize is the size of an OutSim packet with OutSim Opts ff minus the optional id
	VehicleSize = 272

	positionScale = 65536
)

var ErrBadMagic = errors.New("bad magic")
var ErrShortPacket = errors.New("short packet")

// ProtocolError reports a telemetry packet that cannot be decoded. The packet must be dropped.
type ProtocolError struct {
	Packet string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %v packet: %s: %v", e.Packet, e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type wireWheel struct {
	SuspDeflect   float32
	Steer         float32
	XForce        float32
	YForce        float32
	VerticalLoad  float32
	AngVel        float32
	LeanRelToRoad float32
	AirTemp       uint8
	SlipFraction  uint8
	Touching      uint8
	_             uint8
	SlipRatio     float32
	TanSlipAngle  float32
}

type wireVehicle struct {
	Magic [4]byte
	ID    int32
	Time  uint32

	AngVel  [3]float32
	Heading float32
	Pitch   float32
	Roll    float32
	Accel   [3]float32
	Vel     [3]float32
	Pos     [3]int32

	Throttle   float32
	Brake      float32
	InputSteer float32
	Clutch     float32
	Handbrake  float32

	Gear           int8
	_              [3]byte
	EngineAngVel   float32
	MaxTorqueAtVel float32

	CurrentLapDist  float32
	IndexedDistance float32

	Wheels [4]wireWheel
}

// Inputs are the driver inputs as seen by the simulator.
type Inputs struct {
	Steering  float64 // rad
	Throttle  float64
	Brake     float64
	Clutch    float64
	Handbrake float64
}

type Drive struct {
	Gear                  int // 0 reverse, 1 neutral, 2 first...
	EngineAngularVelocity float64
	MaxTorqueAtVelocity   float64
}

type Distance struct {
	CurrentLap float64
	Indexed    float64
}

type Wheel struct {
	SuspensionDeflection float64
	Steer                float64
	XForce               float64
	YForce               float64
	VerticalLoad         float64
	AngularVelocity      float64
	LeanRelativeToRoad   float64
	AirTemp              float64
	SlipFraction         uint8
	Touching             bool
	SlipRatio            float64
	TanSlipAngle         float64
}

// Vehicle is one decoded OutSim packet. Vectors are in the world frame.
// Direction is (yaw, pitch, roll), yaw already points forward.
type Vehicle struct {
	ID                 int32
	Time               uint32 // ms, simulator clock
	AngularVelocity    mgl64.Vec3
	Direction          mgl64.Vec3
	LinearAcceleration mgl64.Vec3
	LinearVelocity     mgl64.Vec3
	Position           mgl64.Vec3 // meters
	Inputs             Inputs
	Drive              Drive
	Distance           Distance
	Wheels             [4]Wheel
}

func (v *Vehicle) Yaw() float64   { return v.Direction[0] }
func (v *Vehicle) Pitch() float64 { return v.Direction[1] }
func (v *Vehicle) Roll() float64  { return v.Direction[2] }

// DecodeVehicle decodes an OutSim packet. Extra trailing bytes are ignored.
func DecodeVehicle(data []byte) (*Vehicle, error) {
	if len(data) < VehicleSize {
		return nil, &ProtocolError{Packet: "outsim", Reason: fmt.Sprintf("%d bytes, want %d", len(data), VehicleSize), Err: ErrShortPacket}
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, &ProtocolError{Packet: "outsim", Reason: fmt.Sprintf("magic %q", data[:len(Magic)]), Err: ErrBadMagic}
	}

	var w wireVehicle
	if err := binary.Read(bytes.NewReader(data[:VehicleSize]), binary.LittleEndian, &w); err != nil {
		return nil, &ProtocolError{Packet: "outsim", Reason: "unable to unpack", Err: err}
	}

	v := Vehicle{
		ID:                 w.ID,
		Time:               w.Time,
		AngularVelocity:    vec3(w.AngVel),
		Direction:          mgl64.Vec3{float64(w.Heading) + math.Pi/2, float64(w.Pitch), float64(w.Roll)},
		LinearAcceleration: vec3(w.Accel),
		LinearVelocity:     vec3(w.Vel),
		Position: mgl64.Vec3{
			float64(w.Pos[0]) / positionScale,
			float64(w.Pos[1]) / positionScale,
			float64(w.Pos[2]) / positionScale,
		},
		Inputs: Inputs{
			Steering:  float64(w.InputSteer),
			Throttle:  float64(w.Throttle),
			Brake:     float64(w.Brake),
			Clutch:    float64(w.Clutch),
			Handbrake: float64(w.Handbrake),
		},
		Drive: Drive{
			Gear:                  int(w.Gear),
			EngineAngularVelocity: float64(w.EngineAngVel),
			MaxTorqueAtVelocity:   float64(w.MaxTorqueAtVel),
		},
		Distance: Distance{CurrentLap: float64(w.CurrentLapDist), Indexed: float64(w.IndexedDistance)},
	}
	for i, ww := range w.Wheels {
		v.Wheels[i] = Wheel{
			SuspensionDeflection: float64(ww.SuspDeflect),
			Steer:                float64(ww.Steer),
			XForce:               float64(ww.XForce),
			YForce:               float64(ww.YForce),
			VerticalLoad:         float64(ww.VerticalLoad),
			AngularVelocity:      float64(ww.AngVel),
			LeanRelativeToRoad:   float64(ww.LeanRelToRoad),
			AirTemp:              float64(ww.AirTemp),
			SlipFraction:         ww.SlipFraction,
			Touching:             ww.Touching != 0,
			SlipRatio:            float64(ww.SlipRatio),
			TanSlipAngle:         float64(ww.TanSlipAngle),
		}
	}
	return &v, nil
}

func vec3(a [3]float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(a[0]), float64(a[1]), float64(a[2])}
}

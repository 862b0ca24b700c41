package events

import (
	"fmt"

	"github.com/cyrilix/robocar-lfsd/pkg/tick"
	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/protobuf/types/known/structpb"
)

func vec3(v mgl64.Vec3) []interface{} {
	return []interface{}{v.X(), v.Y(), v.Z()}
}

// SnapshotMessage converts a tick snapshot to a protobuf struct, vectors as [x, y, z] lists.
func SnapshotMessage(s *tick.Snapshot) (*structpb.Struct, error) {
	cones := make([]interface{}, 0, len(s.VisibleCones))
	for _, c := range s.VisibleCones {
		cones = append(cones, map[string]interface{}{
			"x":    c.X,
			"y":    c.Y,
			"type": c.Type.String(),
			"id":   c.ID,
		})
	}

	fields := map[string]interface{}{
		"timestamp":            float64(s.Timestamp.UnixNano()) / 1e9,
		"delta_t":              s.DeltaT,
		"visible_cones":        cones,
		"local_velocity":       vec3(s.LocalVelocity),
		"local_acceleration":   vec3(s.LocalAcceleration),
		"angular_acceleration": vec3(s.AngularAcceleration),
	}
	if v := s.Vehicle; v != nil {
		fields["vehicle"] = map[string]interface{}{
			"time":             int64(v.Time),
			"position":         vec3(v.Position),
			"direction":        vec3(v.Direction),
			"linear_velocity":  vec3(v.LinearVelocity),
			"angular_velocity": vec3(v.AngularVelocity),
			"steering":         v.Inputs.Steering,
			"throttle":         v.Inputs.Throttle,
			"brake":            v.Inputs.Brake,
			"gear":             v.Drive.Gear,
		}
	}
	if g := s.Gauge; g != nil {
		fields["gauge"] = map[string]interface{}{
			"car":   g.Car,
			"plid":  int64(g.PLID),
			"speed": g.Speed,
			"rpm":   g.RPM,
			"gear":  g.Gear,
		}
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("unable to build snapshot message: %v", err)
	}
	return msg, nil
}

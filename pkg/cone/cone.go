package cone

import (
	"fmt"
	"strings"
)

// Type is the marker category of a cone. The set is closed.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeYellow
	TypeBlue
	TypeOrangeSmall
	TypeOrangeBig
)

// Track side / timing aliases
const (
	TypeRight           = TypeYellow
	TypeLeft            = TypeBlue
	TypeStartFinishArea = TypeOrangeSmall
	TypeStartFinishLine = TypeOrangeBig
)

// NumTypes is the number of cone types, usable as array length for per-type collections.
const NumTypes = 5

// Types lists every cone type in the fixed iteration order.
var Types = [NumTypes]Type{TypeUnknown, TypeYellow, TypeBlue, TypeOrangeSmall, TypeOrangeBig}

var typeNames = [NumTypes]string{"unknown", "yellow", "blue", "orange_small", "orange_big"}

func (t Type) Valid() bool {
	return t < NumTypes
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return typeNames[t]
}

// ParseType accepts the names returned by String plus the left/right aliases.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "unknown":
		return TypeUnknown, nil
	case "yellow", "right":
		return TypeYellow, nil
	case "blue", "left":
		return TypeBlue, nil
	case "orange_small", "start_finish_area":
		return TypeOrangeSmall, nil
	case "orange_big", "start_finish_line":
		return TypeOrangeBig, nil
	}
	return TypeUnknown, fmt.Errorf("unknown cone type %q", name)
}

// Observation is a cone seen from the vehicle, in the vehicle frame (x forward, y left).
// ID is the index of the cone in its type list of the global map, -1 when the detection
// has no source cone.
type Observation struct {
	X    float64
	Y    float64
	Type Type
	ID   int
}

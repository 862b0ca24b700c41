package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// World is the short name of a simulator map a layout is placed on.
type World string

const (
	WorldBlackwood  World = "BL4"
	WorldAutocross1 World = "AU1"
	WorldAutocross2 World = "AU2"
	WorldAutocross3 World = "AU3"
	WorldWesthill   World = "WE3"
	WorldLayoutSq   World = "LA2"
)

// chosen by hand to land close to the centre of each map, in meters
var worldOffsets = map[World][2]float64{
	WorldBlackwood:  {-261, 124},
	WorldAutocross1: {-50, -1010},
	WorldAutocross2: {-138, -696},
	WorldAutocross3: {-66, -50},
	WorldWesthill:   {64, -1200},
	WorldLayoutSq:   {538, 548},
}

// Canonical is the upper case short name used by the simulator, "au1" becomes "AU1".
func (w World) Canonical() World {
	return World(strings.ToUpper(strings.TrimSpace(string(w))))
}

// Offset is the translation applied to track coordinates when written on this world.
func (w World) Offset() (mgl64.Vec2, error) {
	o, ok := worldOffsets[w.Canonical()]
	if !ok {
		return mgl64.Vec2{}, &ConfigError{Field: "world", Reason: fmt.Sprintf("%q", string(w)), Err: ErrUnknownWorld}
	}
	return mgl64.Vec2{o[0], o[1]}, nil
}

// HeadingByte converts a heading in radians to the one byte heading of layout objects:
// 256 steps per turn, 128 facing the +y axis. The value is floored, then wrapped.
func HeadingByte(rad float64) uint8 {
	deg := rad * 180 / math.Pi
	v := int64(math.Floor((deg + 180) * 256 / 360))
	v %= 256
	if v < 0 {
		v += 256
	}
	return uint8(v)
}

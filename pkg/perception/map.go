package perception

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/detection"
	"github.com/cyrilix/robocar-lfsd/pkg/geometry"
	"github.com/cyrilix/robocar-lfsd/pkg/layout"
	"github.com/dhconnelly/rtreego"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	coneTolerance    = 0.005
)

// Map is one immutable generation of the global cone map.
type Map struct {
	Name       string
	Cones      layout.ConeMap
	Checksum   uint64
	Generation uint64

	index [cone.NumTypes]*rtreego.Rtree
}

type indexedCone struct {
	position mgl64.Vec2
	id       int
}

func (c *indexedCone) Bounds() rtreego.Rect {
	return rtreego.Point{c.position.X(), c.position.Y()}.ToRect(coneTolerance)
}

func newMap(name string, cones layout.ConeMap, generation uint64) *Map {
	m := Map{
		Name:       name,
		Cones:      cones,
		Checksum:   checksum(&cones),
		Generation: generation,
	}
	for _, t := range cone.Types {
		if len(cones[t]) == 0 {
			continue
		}
		objs := make([]rtreego.Spatial, len(cones[t]))
		for i, p := range cones[t] {
			objs[i] = &indexedCone{position: p, id: i}
		}
		m.index[t] = rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren, objs...)
	}
	return &m
}

func checksum(cones *layout.ConeMap) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	for t, l := range cones {
		_, _ = h.Write([]byte{byte(t)})
		for _, p := range l {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(p.X()))
			_, _ = h.Write(buf)
			binary.LittleEndian.PutUint64(buf, math.Float64bits(p.Y()))
			_, _ = h.Write(buf)
		}
	}
	return h.Sum64()
}

// Visible runs model once over the cones of every type and returns the detections in the vehicle frame,
// grouped by detected type in cone.Types order, then by source type and cone id. Phantom detections come
// last in their group.
func (m *Map) Visible(model detection.Model, pos, dir mgl64.Vec2) []cone.Observation {
	var positions []mgl64.Vec2
	var types []cone.Type
	var ids []int
	for _, t := range cone.Types {
		if len(m.Cones[t]) == 0 {
			continue
		}
		p, i := m.candidates(t, model, pos)
		positions = append(positions, p...)
		ids = append(ids, i...)
		for range p {
			types = append(types, t)
		}
	}
	if len(positions) == 0 {
		return nil
	}

	detected := model.Detect(pos, dir, positions, types)
	if detected.Len() == 0 {
		return nil
	}

	local := geometry.ToLocalSpace(pos, dir, detected.Positions)
	observations := make([]cone.Observation, len(local))
	sources := make([]int, len(local))
	for i, p := range local {
		id, source := detection.Phantom, math.MaxInt
		if s := detected.Sources[i]; s >= 0 && s < len(ids) {
			id, source = ids[s], s
		}
		observations[i] = cone.Observation{X: p.X(), Y: p.Y(), Type: detected.Types[i], ID: id}
		sources[i] = source
	}
	sort.Stable(&byGroup{observations: observations, sources: sources})
	return observations
}

// byGroup orders observations by type, then by position in the model input.
type byGroup struct {
	observations []cone.Observation
	sources      []int
}

func (b *byGroup) Len() int { return len(b.observations) }

func (b *byGroup) Less(i, j int) bool {
	if b.observations[i].Type != b.observations[j].Type {
		return b.observations[i].Type < b.observations[j].Type
	}
	return b.sources[i] < b.sources[j]
}

func (b *byGroup) Swap(i, j int) {
	b.observations[i], b.observations[j] = b.observations[j], b.observations[i]
	b.sources[i], b.sources[j] = b.sources[j], b.sources[i]
}

// candidates returns the cones of type t worth giving to the model with their ids, ascending.
// Models with a finite range only get the cones inside the bounding square of that range.
func (m *Map) candidates(t cone.Type, model detection.Model, pos mgl64.Vec2) ([]mgl64.Vec2, []int) {
	all := m.Cones[t]
	ranged, ok := model.(detection.Ranged)
	if !ok || m.index[t] == nil {
		return all, identity(len(all))
	}
	r := ranged.MaxRange()
	if math.IsInf(r, 1) || math.IsNaN(r) || r <= 0 {
		return all, identity(len(all))
	}

	area, err := rtreego.NewRect(rtreego.Point{pos.X() - r, pos.Y() - r}, []float64{2 * r, 2 * r})
	if err != nil {
		return all, identity(len(all))
	}
	found := m.index[t].SearchIntersect(area)
	ids := make([]int, len(found))
	for i, s := range found {
		ids[i] = s.(*indexedCone).id
	}
	sort.Ints(ids)

	positions := make([]mgl64.Vec2, len(ids))
	for i, id := range ids {
		positions[i] = all[id]
	}
	return positions, ids
}

func identity(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

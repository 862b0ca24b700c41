package layout

import (
	"fmt"
	"os"
	"sort"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// Track is the human editable description of a layout:
//
//	world: BL4
//	name: skidpad
//	cones:
//	  blue: [[0, 2], [5, 2]]
//	  yellow: [[0, -2], [5, -2]]
//	  orange_big: [[-1, 2.5], [-1, -2.5]]
type Track struct {
	World World                    `yaml:"world"`
	Name  string                   `yaml:"name"`
	Cones map[string][][2]float64 `yaml:"cones"`
}

// ConeMap converts the named cone lists to a ConeMap. Lists naming the same type are
// appended in name order, the colour name first, so cone ids do not depend on map order.
func (t *Track) ConeMap() (ConeMap, error) {
	var names [cone.NumTypes][]string
	for name := range t.Cones {
		ct, err := cone.ParseType(name)
		if err != nil {
			return ConeMap{}, &ConfigError{Field: "cones", Reason: name, Err: err}
		}
		names[ct] = append(names[ct], name)
	}

	var cones ConeMap
	for _, ct := range cone.Types {
		sort.Slice(names[ct], func(i, j int) bool {
			a, b := names[ct][i], names[ct][j]
			if (a == ct.String()) != (b == ct.String()) {
				return a == ct.String()
			}
			return a < b
		})
		for _, name := range names[ct] {
			for _, p := range t.Cones[name] {
				cones[ct] = append(cones[ct], mgl64.Vec2{p[0], p[1]})
			}
		}
	}
	return cones, nil
}

// NewTrack builds a Track from a ConeMap, one entry per non empty type.
func NewTrack(world World, name string, cones ConeMap) *Track {
	t := Track{World: world, Name: name, Cones: make(map[string][][2]float64)}
	for _, ct := range cone.Types {
		if len(cones[ct]) == 0 {
			continue
		}
		points := make([][2]float64, len(cones[ct]))
		for i, p := range cones[ct] {
			points[i] = [2]float64{p.X(), p.Y()}
		}
		t.Cones[ct.String()] = points
	}
	return &t
}

// LoadTrack reads a yaml track description.
func LoadTrack(path string) (*Track, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read track %v: %w", path, err)
	}
	var t Track
	if err := yaml.Unmarshal(content, &t); err != nil {
		return nil, fmt.Errorf("unable to parse track %v: %w", path, err)
	}
	if t.Name == "" {
		return nil, &ConfigError{Field: "name", Reason: "empty", Err: ErrIncompleteTrack}
	}
	if _, err := t.World.Offset(); err != nil {
		return nil, err
	}
	t.World = t.World.Canonical()
	return &t, nil
}

// Marshal returns the yaml form of the track.
func (t *Track) Marshal() ([]byte, error) {
	content, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal track %v: %w", t.Name, err)
	}
	return content, nil
}

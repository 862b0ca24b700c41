// Package perception owns the active cone map and turns it into vehicle frame observations.
//
// The active map is replaced as a whole when the simulator loads another layout. Readers get
// either the previous or the next generation, never a mix.
package perception

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/detection"
	"github.com/cyrilix/robocar-lfsd/pkg/layout"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrNoLayout is the panic value of a visibility query made before any layout was published.
var ErrNoLayout = errors.New("no layout loaded")

type Perception struct {
	model      detection.Model
	codec      layout.Codec
	current    atomic.Pointer[Map]
	generation atomic.Uint64
}

func New(model detection.Model) *Perception {
	return &Perception{model: model, codec: layout.DefaultCodec}
}

// Load reads a layout file and publishes it as the active map. On error the active map is kept.
func (p *Perception) Load(path string) (*Map, error) {
	cones, err := p.codec.Load(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), layout.Extension)
	m := p.Publish(name, cones)
	zap.S().Infof("layout %v loaded from %v: %d cones, checksum %016x, generation %d",
		name, path, cones.Len(), m.Checksum, m.Generation)
	return m, nil
}

// Publish makes cones the active map.
func (p *Perception) Publish(name string, cones layout.ConeMap) *Map {
	m := newMap(name, cones, p.generation.Inc())
	p.current.Store(m)
	return m
}

// Current returns the active map, nil before the first layout.
func (p *Perception) Current() *Map {
	return p.current.Load()
}

func (p *Perception) Loaded() bool {
	return p.current.Load() != nil
}

// VisibleCones returns the cones seen from a vehicle at pos heading along dir.
// It panics with ErrNoLayout when no map was published yet.
func (p *Perception) VisibleCones(pos, dir mgl64.Vec2) []cone.Observation {
	m := p.current.Load()
	if m == nil {
		panic(ErrNoLayout)
	}
	return m.Visible(p.model, pos, dir)
}

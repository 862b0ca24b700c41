package detection

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/geometry"
	"github.com/go-gl/mathgl/mgl64"
)

// NoiseConfig describes the imperfections added by Noisy.
type NoiseConfig struct {
	// Standard deviation of the position error, in meters
	PositionSigma float64
	// Probability to miss a detected cone
	DropRate float64
	// Probability to lose the colour of a detected cone
	UnknownRate float64
	// Probability to report one phantom cone per call
	PhantomRate float64
	// Phantoms are placed at most at this distance in front of the vehicle
	PhantomRange float64
}

func (c NoiseConfig) validate() error {
	if c.PositionSigma < 0 || math.IsNaN(c.PositionSigma) {
		return &ConfigError{Field: "position sigma", Reason: fmt.Sprintf("%v is negative", c.PositionSigma)}
	}
	for name, rate := range map[string]float64{"drop rate": c.DropRate, "unknown rate": c.UnknownRate, "phantom rate": c.PhantomRate} {
		if !(rate >= 0 && rate <= 1) {
			return &ConfigError{Field: name, Reason: fmt.Sprintf("%v is not a probability", rate)}
		}
	}
	if c.PhantomRate > 0 && !(c.PhantomRange > 0) {
		return &ConfigError{Field: "phantom range", Reason: "required with a phantom rate"}
	}
	return nil
}

// Noisy decorates a Model with position noise, dropouts, lost colours and phantom cones.
type Noisy struct {
	inner Model
	cfg   NoiseConfig

	muRand sync.Mutex
	rnd    *rand.Rand
}

func NewNoisy(inner Model, cfg NoiseConfig, seed int64) (*Noisy, error) {
	if inner == nil {
		return nil, &ConfigError{Field: "model", Reason: "missing"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Noisy{inner: inner, cfg: cfg, rnd: rand.New(rand.NewSource(seed))}, nil
}

// MaxRange is the one of the decorated model, infinite when it has none.
func (n *Noisy) MaxRange() float64 {
	if r, ok := n.inner.(Ranged); ok {
		return r.MaxRange()
	}
	return math.Inf(1)
}

func (n *Noisy) Detect(pos, dir mgl64.Vec2, positions []mgl64.Vec2, types []cone.Type) Detections {
	detected := n.inner.Detect(pos, dir, positions, types)

	n.muRand.Lock()
	defer n.muRand.Unlock()

	var d Detections
	for i, p := range detected.Positions {
		if n.rnd.Float64() < n.cfg.DropRate {
			continue
		}
		t := detected.Types[i]
		if n.rnd.Float64() < n.cfg.UnknownRate {
			t = cone.TypeUnknown
		}
		if n.cfg.PositionSigma > 0 {
			p = p.Add(mgl64.Vec2{n.rnd.NormFloat64() * n.cfg.PositionSigma, n.rnd.NormFloat64() * n.cfg.PositionSigma})
		}
		d.add(p, t, detected.Sources[i])
	}

	if n.cfg.PhantomRate > 0 && n.rnd.Float64() < n.cfg.PhantomRate {
		heading := geometry.AngleFromVector(dir) + (n.rnd.Float64()-0.5)*math.Pi/2
		dist := n.rnd.Float64() * n.cfg.PhantomRange
		p := pos.Add(geometry.UnitVectorFromAngle(heading).Mul(dist))
		d.add(p, cone.Types[n.rnd.Intn(cone.NumTypes)], Phantom)
	}
	return d
}

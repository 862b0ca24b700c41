package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-lfsd/pkg/insim"
	"github.com/cyrilix/robocar-lfsd/pkg/outsim"
	"github.com/cyrilix/robocar-lfsd/pkg/perception"
	"github.com/cyrilix/robocar-lfsd/pkg/simulator"
	"github.com/cyrilix/robocar-lfsd/pkg/tick"
	"github.com/cyrilix/robocar-protobuf/go/events"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxPacketSize = 1024
	subscriberLen = 10
)

// Config lists the addresses the gateway listens on and connects to.
type Config struct {
	// Local addresses LFS sends OutSim and OutGauge packets to
	OutSimAddress   string
	OutGaugeAddress string
	// InSim address of LFS
	InSimAddress  string
	InSimPassword string
	// Prefix of the text commands, 0 for /o commands only
	CommandPrefix byte
	// LayoutDir is where the layouts announced by LFS are read from
	LayoutDir string
	// FrameName is the name of the published frames
	FrameName string
}

type SimulatorSource interface {
	SubscribeSnapshot() <-chan *tick.Snapshot
	SubscribeFrame() <-chan *events.FrameMessage
	SubscribeSteering() <-chan *events.SteeringMessage
	SubscribeThrottle() <-chan *events.ThrottleMessage
}

// FrameRenderer draws the visible cones as a camera frame.
type FrameRenderer interface {
	Frame(name string, ts time.Time, cones []cone.Observation) (*events.FrameMessage, error)
}

func New(cfg Config, percept *perception.Perception, renderer FrameRenderer) *Gateway {
	l := zap.S().With("insim", cfg.InSimAddress, "outsim", cfg.OutSimAddress, "outgauge", cfg.OutGaugeAddress)
	l.Info("run gateway from LFS")

	return &Gateway{
		cancel:     make(chan interface{}),
		cfg:        cfg,
		perception: percept,
		processor:  tick.NewProcessor(percept),
		renderer:   renderer,
		log:        l,
	}
}

// Gateway turns LFS telemetry into tick snapshots and keeps the active layout in sync with LFS.
type Gateway struct {
	cancel   chan interface{}
	stopOnce sync.Once

	cfg Config

	perception *perception.Perception
	processor  *tick.Processor
	timer      simulator.Timer
	renderer   FrameRenderer

	muConn   sync.Mutex
	outSim   net.PacketConn
	outGauge net.PacketConn
	insim    io.ReadWriteCloser

	lastGauge  atomic.Pointer[outsim.Gauge]
	state      atomic.Pointer[insim.State]
	layoutName atomic.String

	// set on race start, the processor is reset on the next tick
	restart     atomic.Bool
	lastSimTime uint32
	simStarted  bool

	ticks   atomic.Uint64
	gated   atomic.Uint64
	dropped atomic.Uint64

	muSubscribers sync.Mutex
	snapshotSubs  []chan *tick.Snapshot
	frameSubs     []chan *events.FrameMessage
	steeringSubs  []chan *events.SteeringMessage
	throttleSubs  []chan *events.ThrottleMessage

	muCallbacks sync.Mutex
	onRaceStart []func()
	onCommand   []func(insim.Command)
	onObjectHit []func(insim.ObjectHit)

	log *zap.SugaredLogger
}

// Start listens to LFS until Stop is called.
func (g *Gateway) Start() error {
	g.log.Info("connect to LFS")

	outSim, err := listenPacket(g.cfg.OutSimAddress)
	if err != nil {
		return fmt.Errorf("unable to listen outsim packets: %w", err)
	}
	outGauge, err := listenPacket(g.cfg.OutGaugeAddress)
	if err != nil {
		_ = outSim.Close()
		return fmt.Errorf("unable to listen outgauge packets: %w", err)
	}
	g.muConn.Lock()
	g.outSim, g.outGauge = outSim, outGauge
	g.muConn.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		select {
		case <-g.cancel:
			cancel()
		case <-ctx.Done():
		}
		// unblock pending reads
		return g.Close()
	})
	group.Go(func() error { return g.listenOutGauge(ctx, outGauge) })
	group.Go(func() error { return g.listenOutSim(ctx, outSim) })
	group.Go(func() error { return g.runInSim(ctx) })

	err = group.Wait()
	g.closeSubscribers()
	return err
}

func (g *Gateway) Stop() {
	g.log.Info("close LFS gateway")
	g.stopOnce.Do(func() { close(g.cancel) })
}

func (g *Gateway) Close() error {
	g.muConn.Lock()
	defer g.muConn.Unlock()

	var errs []error
	for _, c := range []io.Closer{g.outSim, g.outGauge, g.insim} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	g.outSim, g.outGauge, g.insim = nil, nil, nil
	if len(errs) > 0 {
		return fmt.Errorf("unable to close connections to LFS: %v", errs)
	}
	return nil
}

// RegisterTimer calls fn every interval ms of simulation time, from the telemetry goroutine.
func (g *Gateway) RegisterTimer(fn func(), interval int64) error {
	if interval < simulator.MinInterval {
		g.log.Warnf("timer interval %dms below the simulator resolution, it will run every %dms", interval, simulator.MinInterval)
	}
	return g.timer.Register(fn, interval)
}

// Counters returns the number of processed ticks, ticks skipped waiting for a layout or gauge, and
// malformed telemetry packets.
func (g *Gateway) Counters() (ticks, gated, dropped uint64) {
	return g.ticks.Load(), g.gated.Load(), g.dropped.Load()
}

func (g *Gateway) listenOutGauge(ctx context.Context, conn net.PacketConn) error {
	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("unable to read outgauge packet: %w", err)
		}
		gauge, err := outsim.DecodeGauge(buf[:n])
		if err != nil {
			g.dropped.Inc()
			g.log.Warnf("skip outgauge packet: %v", err)
			continue
		}
		g.lastGauge.Store(gauge)
	}
}

func (g *Gateway) listenOutSim(ctx context.Context, conn net.PacketConn) error {
	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("unable to read outsim packet: %w", err)
		}
		vehicle, err := outsim.DecodeVehicle(buf[:n])
		if err != nil {
			g.dropped.Inc()
			g.log.Warnf("skip outsim packet: %v", err)
			continue
		}
		g.onVehicle(time.Now(), vehicle)
	}
}

// onVehicle runs one tick. Ticks wait for a first gauge packet and a layout.
// A race start or the simulation clock going backwards resets the tick state.
func (g *Gateway) onVehicle(ts time.Time, vehicle *outsim.Vehicle) {
	g.timer.Run(int64(vehicle.Time))

	clockReset := g.simStarted && vehicle.Time < g.lastSimTime
	g.lastSimTime, g.simStarted = vehicle.Time, true
	if g.restart.CompareAndSwap(true, false) || clockReset {
		g.log.Debug("reset tick processing")
		g.processor.Reset()
	}

	gauge := g.lastGauge.Load()
	if gauge == nil || !g.perception.Loaded() {
		if g.gated.Inc() == 1 {
			g.log.Info("waiting for outgauge data and a layout before processing telemetry")
		}
		return
	}

	snapshot := g.processor.Process(ts, vehicle, gauge)
	g.ticks.Inc()

	g.publishSnapshot(snapshot)
	g.publishInputSteering(vehicle)
	g.publishInputThrottle(vehicle)
	g.publishFrame(snapshot)
}

func (g *Gateway) publishSnapshot(snapshot *tick.Snapshot) {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	for _, s := range g.snapshotSubs {
		select {
		case s <- snapshot:
		default:
		}
	}
}

func (g *Gateway) publishFrame(snapshot *tick.Snapshot) {
	if g.renderer == nil {
		return
	}
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	if len(g.frameSubs) == 0 {
		return
	}

	msg, err := g.renderer.Frame(g.cfg.FrameName, snapshot.Timestamp, snapshot.VisibleCones)
	if err != nil {
		g.log.Errorf("unable to render frame: %v", err)
		return
	}
	g.log.Debugf("publish frame '%v/%v'", msg.Id.Name, msg.Id.Id)
	for _, s := range g.frameSubs {
		select {
		case s <- msg:
		default:
		}
	}
}

func (g *Gateway) publishInputSteering(vehicle *outsim.Vehicle) {
	steering := &events.SteeringMessage{
		Steering:   float32(vehicle.Inputs.Steering),
		Confidence: 1.0,
	}

	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	for _, s := range g.steeringSubs {
		select {
		case s <- steering:
		default:
		}
	}
}

// publishInputThrottle merges throttle and brake, braking is a negative throttle.
func (g *Gateway) publishInputThrottle(vehicle *outsim.Vehicle) {
	throttle := &events.ThrottleMessage{
		Throttle:   float32(vehicle.Inputs.Throttle - vehicle.Inputs.Brake),
		Confidence: 1.0,
	}

	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	for _, s := range g.throttleSubs {
		select {
		case s <- throttle:
		default:
		}
	}
}

func (g *Gateway) SubscribeSnapshot() <-chan *tick.Snapshot {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	c := make(chan *tick.Snapshot, subscriberLen)
	g.snapshotSubs = append(g.snapshotSubs, c)
	return c
}

func (g *Gateway) SubscribeFrame() <-chan *events.FrameMessage {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	c := make(chan *events.FrameMessage, subscriberLen)
	g.frameSubs = append(g.frameSubs, c)
	return c
}

func (g *Gateway) SubscribeSteering() <-chan *events.SteeringMessage {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	c := make(chan *events.SteeringMessage, subscriberLen)
	g.steeringSubs = append(g.steeringSubs, c)
	return c
}

func (g *Gateway) SubscribeThrottle() <-chan *events.ThrottleMessage {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	c := make(chan *events.ThrottleMessage, subscriberLen)
	g.throttleSubs = append(g.throttleSubs, c)
	return c
}

func (g *Gateway) closeSubscribers() {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	for _, c := range g.snapshotSubs {
		close(c)
	}
	for _, c := range g.frameSubs {
		close(c)
	}
	for _, c := range g.steeringSubs {
		close(c)
	}
	for _, c := range g.throttleSubs {
		close(c)
	}
	g.snapshotSubs, g.frameSubs, g.steeringSubs, g.throttleSubs = nil, nil, nil, nil
}

var listenPacket = func(address string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %v: %w", address, err)
	}
	return conn, nil
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/insim"
	"github.com/cyrilix/robocar-lfsd/pkg/layout"
	"github.com/google/uuid"
)

const readBufferSize = 4096

var reconnectDelay = 1 * time.Second

var (
	ErrNotConnected = errors.New("not connected to insim")
	ErrNoPlayer     = errors.New("no player id received yet")
)

func programName() string {
	return "lfsd-" + uuid.New().String()[:8]
}

// runInSim keeps a control channel open with LFS until ctx is done. Connection and handshake
// failures are retried every reconnectDelay, telemetry keeps flowing meanwhile.
func (g *Gateway) runInSim(ctx context.Context) error {
	for {
		conn, err := g.connectInSim(ctx)
		if err == nil {
			err = g.listenInSim(conn)
			g.closeInSim(conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		g.log.Warnf("insim connection lost, reconnect in %v: %v", reconnectDelay, err)

		delay := time.NewTimer(reconnectDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			return nil
		case <-delay.C:
		}
	}
}

// connectInSim opens the control channel and sends the initialisation requests.
func (g *Gateway) connectInSim(ctx context.Context) (io.ReadWriteCloser, error) {
	g.log.Info("connect to insim")
	conn, err := connect(g.cfg.InSimAddress)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to insim at %v: %w", g.cfg.InSimAddress, err)
	}
	g.log.Info("connection success")

	g.muConn.Lock()
	if ctx.Err() != nil {
		g.muConn.Unlock()
		_ = conn.Close()
		return nil, ctx.Err()
	}
	g.insim = conn
	g.muConn.Unlock()

	name := programName()
	for _, packet := range [][]byte{
		insim.Init(name, g.cfg.InSimPassword, insim.FlagObh, g.cfg.CommandPrefix),
		insim.RequestLayout(),
		insim.RequestState(),
	} {
		if err := g.writeInSim(packet); err != nil {
			g.closeInSim(conn)
			return nil, err
		}
	}
	g.log.Infof("insim initialized as %v", name)
	return conn, nil
}

func (g *Gateway) closeInSim(conn io.Closer) {
	g.muConn.Lock()
	if g.insim == conn {
		g.insim = nil
	}
	g.muConn.Unlock()
	_ = conn.Close()
}

// listenInSim reads packets until the connection fails. Packets split across reads are kept until complete.
func (g *Gateway) listenInSim(conn io.Reader) error {
	var buf []byte
	chunk := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = g.handleInSimBuffer(append(buf, chunk[:n]...))
		}
		if err == io.EOF {
			g.log.Info("Connection closed")
			return err
		}
		if err != nil {
			return fmt.Errorf("unable to read insim packet: %w", err)
		}
	}
}

// handleInSimBuffer handles every complete packet of buf and returns the bytes left.
func (g *Gateway) handleInSimBuffer(buf []byte) []byte {
	for {
		packet, rest, err := insim.Next(buf)
		if errors.Is(err, insim.ErrIncomplete) {
			return buf
		}
		if err != nil {
			// the stream cannot be resynchronised
			g.dropped.Inc()
			g.log.Errorf("drop %d bytes of insim stream: %v", len(buf), err)
			return nil
		}
		buf = rest

		event, err := insim.Handle(packet)
		if err != nil {
			g.dropped.Inc()
			g.log.Warnf("skip insim packet: %v", err)
			continue
		}
		if event != nil {
			g.dispatch(event)
		}
	}
}

func (g *Gateway) dispatch(event insim.Event) {
	g.log.Debugf("insim event: %v", event)
	switch e := event.(type) {
	case insim.KeepAlive:
		if err := g.writeInSim(e.Reply); err != nil {
			g.log.Errorf("unable to answer keep alive: %v", err)
		}
	case insim.LayoutLoaded:
		g.onLayout(e.Name)
	case insim.StateChanged:
		previous := g.state.Swap(&e.State)
		if previous == nil || previous.Paused() != e.State.Paused() {
			g.log.Infof("simulator paused: %v", e.State.Paused())
		}
	case insim.RaceStart:
		g.restart.Store(true)
		g.muCallbacks.Lock()
		callbacks := append([]func(){}, g.onRaceStart...)
		g.muCallbacks.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	case insim.ObjectHit:
		g.muCallbacks.Lock()
		callbacks := append([]func(insim.ObjectHit){}, g.onObjectHit...)
		g.muCallbacks.Unlock()
		for _, fn := range callbacks {
			fn(e)
		}
	case insim.Command:
		g.muCallbacks.Lock()
		callbacks := append([]func(insim.Command){}, g.onCommand...)
		g.muCallbacks.Unlock()
		for _, fn := range callbacks {
			fn(e)
		}
	}
}

// onLayout loads the layout announced by LFS when it differs from the active one.
// A layout that cannot be read keeps the previous one active.
func (g *Gateway) onLayout(name string) {
	if name == "" {
		g.log.Warn("no layout loaded in LFS")
		return
	}
	if name == g.layoutName.Load() {
		return
	}
	path := filepath.Join(g.cfg.LayoutDir, name+layout.Extension)
	if _, err := g.perception.Load(path); err != nil {
		g.log.Errorf("unable to load layout %v: %v", name, err)
		return
	}
	g.layoutName.Store(name)
}

// LayoutName is the name of the active layout, empty before the first one.
func (g *Gateway) LayoutName() string {
	return g.layoutName.Load()
}

// State is the last simulator state received, nil before the first one.
func (g *Gateway) State() *insim.State {
	return g.state.Load()
}

func (g *Gateway) OnRaceStart(fn func()) {
	g.muCallbacks.Lock()
	defer g.muCallbacks.Unlock()
	g.onRaceStart = append(g.onRaceStart, fn)
}

func (g *Gateway) OnCommand(fn func(insim.Command)) {
	g.muCallbacks.Lock()
	defer g.muCallbacks.Unlock()
	g.onCommand = append(g.onCommand, fn)
}

func (g *Gateway) OnObjectHit(fn func(insim.ObjectHit)) {
	g.muCallbacks.Lock()
	defer g.muCallbacks.Unlock()
	g.onObjectHit = append(g.onObjectHit, fn)
}

// Teleport moves the player car to (x, y) facing yaw, the player is the one of the last gauge packet.
func (g *Gateway) Teleport(x, y, yaw float64) error {
	gauge := g.lastGauge.Load()
	if gauge == nil {
		return ErrNoPlayer
	}
	return g.writeInSim(insim.Teleport(x, y, yaw, gauge.PLID))
}

func (g *Gateway) PressKey(key string) error {
	return g.writeInSim(insim.PressKey(key))
}

func (g *Gateway) Say(msg string) error {
	return g.writeInSim(insim.Say(msg))
}

// TogglePause presses the pause key of LFS.
func (g *Gateway) TogglePause() error {
	return g.PressKey("p")
}

func (g *Gateway) writeInSim(packet []byte) error {
	g.muConn.Lock()
	defer g.muConn.Unlock()
	if g.insim == nil {
		return ErrNotConnected
	}
	if _, err := g.insim.Write(packet); err != nil {
		return fmt.Errorf("unable to write insim packet: %w", err)
	}
	return nil
}

var connect = func(address string) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %v: %w", address, err)
	}
	return conn, nil
}

package controls

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/cyrilix/robocar-protobuf/go/events"
	"go.uber.org/zap"
)

const (
	// DriveCommandSize is the size of an encoded DriveCommand
	DriveCommandSize = 24
	// DefaultPort of the virtual joystick relay
	DefaultPort = 30002
)

type SteeringController interface {
	WriteSteering(message *events.SteeringMessage)
}

type ThrottleController interface {
	WriteThrottle(message *events.ThrottleMessage)
}

// DriveCommand is the packet read by the virtual joystick relay, all percentages in [0, 1]
// except Steering in [-1, 1] (-1 full left).
type DriveCommand struct {
	Steering float32
	Throttle float32
	Brake    float32
	Clutch   float32
	// -1 downshift, 1 upshift
	GearDelta int32
	// sending time in seconds, used by the relay to estimate the command delay
	Time float32
}

func (c *DriveCommand) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.Grow(DriveCommandSize)
	if err := binary.Write(&buf, binary.LittleEndian, c); err != nil {
		return nil, fmt.Errorf("unable to encode drive command: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *DriveCommand) UnmarshalBinary(data []byte) error {
	if len(data) != DriveCommandSize {
		return fmt.Errorf("unable to decode drive command: %d bytes, wants %d", len(data), DriveCommandSize)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, c)
}

func New(address string) *Gateway {
	return &Gateway{
		address: address,
		log:     zap.S().With("vjoy", address),
		now:     time.Now,
	}
}

// Gateway relays driving commands received from mqtt topics to the virtual joystick
type Gateway struct {
	cancel chan interface{}

	address string
	muConn  sync.Mutex
	conn    io.WriteCloser

	muControl   sync.Mutex
	lastControl *DriveCommand

	start time.Time
	now   func() time.Time
	log   *zap.SugaredLogger
}

func (g *Gateway) Start() error {
	g.log.Info("connect to virtual joystick")
	g.cancel = make(chan interface{})
	g.start = g.now()

	err := retry.Do(func() error {
		conn, err := connect(g.address)
		if err != nil {
			return fmt.Errorf("unable to connect to virtual joystick at %v: %w", g.address, err)
		}
		g.muConn.Lock()
		defer g.muConn.Unlock()
		g.conn = conn
		return nil
	},
		retry.Delay(1*time.Second),
		retry.Attempts(5),
	)
	if err != nil {
		return fmt.Errorf("unable to start controls gateway: %w", err)
	}
	return nil
}

func (g *Gateway) Stop() {
	g.log.Info("close controls gateway")
	if g.cancel != nil {
		close(g.cancel)
	}

	if err := g.Close(); err != nil {
		g.log.Warnf("unexpected error while virtual joystick connection is closed: %v", err)
	}
}

func (g *Gateway) Close() error {
	g.muConn.Lock()
	defer g.muConn.Unlock()
	if g.conn == nil {
		g.log.Warn("no connection to close")
		return nil
	}
	if err := g.conn.Close(); err != nil {
		return fmt.Errorf("unable to close connection to virtual joystick: %v", err)
	}
	g.conn = nil
	return nil
}

func (g *Gateway) WriteSteering(message *events.SteeringMessage) {
	g.muControl.Lock()
	defer g.muControl.Unlock()
	g.initLastControlMsg()

	g.lastControl.Steering = message.Steering
	g.writeContent()
}

func (g *Gateway) WriteThrottle(message *events.ThrottleMessage) {
	g.muControl.Lock()
	defer g.muControl.Unlock()
	g.initLastControlMsg()

	if message.Throttle > 0 {
		g.lastControl.Throttle = message.Throttle
		g.lastControl.Brake = 0.
	} else {
		g.lastControl.Throttle = 0.
		g.lastControl.Brake = -1 * message.Throttle
	}

	g.writeContent()
}

// ShiftGear sends one command with a gear change, following commands keep the gear.
func (g *Gateway) ShiftGear(delta int32) {
	g.muControl.Lock()
	defer g.muControl.Unlock()
	g.initLastControlMsg()

	g.lastControl.GearDelta = delta
	g.writeContent()
	g.lastControl.GearDelta = 0
}

func (g *Gateway) writeContent() {
	g.lastControl.Time = float32(g.now().Sub(g.start).Seconds())
	content, err := g.lastControl.MarshalBinary()
	if err != nil {
		g.log.Errorf("unable to marshal control msg \"%#v\": %v", g.lastControl, err)
		return
	}

	g.muConn.Lock()
	defer g.muConn.Unlock()
	if g.conn == nil {
		g.log.Warnf("no connection, drop control msg \"%#v\"", g.lastControl)
		return
	}
	if _, err = g.conn.Write(content); err != nil {
		g.log.Errorf("unable to write control msg \"%#v\" to virtual joystick: %v", g.lastControl, err)
	}
}

func (g *Gateway) initLastControlMsg() {
	if g.lastControl != nil {
		return
	}
	g.lastControl = &DriveCommand{}
}

var connect = func(address string) (io.WriteCloser, error) {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %v", address)
	}
	return conn, nil
}

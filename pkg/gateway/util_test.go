package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/insim"
	"github.com/cyrilix/robocar-lfsd/pkg/outsim"
	"go.uber.org/zap"
)

// InSimMock plays LFS on the InSim side: it records the packets sent by the gateway and emits packets to it.
type InSimMock struct {
	initOnce sync.Once

	ln            net.Listener
	muConn        sync.Mutex
	conn          net.Conn
	newConnection chan net.Conn
	notifyChan    chan []byte
	logger        *zap.SugaredLogger
}

func (c *InSimMock) init() {
	c.newConnection = make(chan net.Conn, 1)
	c.notifyChan = make(chan []byte, 100)
	c.logger = zap.S().With("insim", "mock")
}

func (c *InSimMock) Notify() <-chan []byte {
	c.initOnce.Do(c.init)
	return c.notifyChan
}

func (c *InSimMock) Start() error {
	c.initOnce.Do(c.init)
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return fmt.Errorf("unable to listen on port: %v", err)
	}
	c.ln = ln

	go func() {
		for {
			conn, err := c.ln.Accept()
			if err != nil {
				c.logger.Debugf("connection close: %v", err)
				return
			}
			go c.handleConnection(conn)
			c.newConnection <- conn
		}
	}()
	return nil
}

func (c *InSimMock) handleConnection(conn net.Conn) {
	var buf []byte
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		for {
			packet, rest, errNext := insim.Next(buf)
			if errNext != nil {
				break
			}
			c.notifyChan <- append([]byte{}, packet...)
			buf = rest
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debugf("unable to read request: %v", err)
			}
			return
		}
	}
}

func (c *InSimMock) WaitConnection() {
	c.muConn.Lock()
	defer c.muConn.Unlock()
	if c.conn != nil {
		return
	}
	c.conn = <-c.newConnection
}

func (c *InSimMock) EmitMsg(p []byte) error {
	c.WaitConnection()
	c.muConn.Lock()
	defer c.muConn.Unlock()
	_, err := c.conn.Write(p)
	return err
}

// Receive waits for the next packet sent by the gateway.
func (c *InSimMock) Receive(t *testing.T) []byte {
	t.Helper()
	select {
	case p := <-c.Notify():
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("no insim packet received")
		return nil
	}
}

func (c *InSimMock) Addr() string {
	return c.ln.Addr().String()
}

func (c *InSimMock) Close() error {
	c.muConn.Lock()
	defer c.muConn.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	err := c.ln.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("unable to close mock server: %v", err)
	}
	return nil
}

func sendUDP(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("unable to dial %v: %v", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.Errorf("unable to send udp packet: %v", err)
	}
}

// vehiclePacket builds an OutSim packet at (x, y) meters facing yaw (0 along +x).
func vehiclePacket(simTime uint32, x, y, yaw float64, throttle, brake float32) []byte {
	p := make([]byte, outsim.VehicleSize)
	copy(p, outsim.Magic)
	binary.LittleEndian.PutUint32(p[8:], simTime)
	binary.LittleEndian.PutUint32(p[24:], math.Float32bits(float32(yaw-math.Pi/2)))
	binary.LittleEndian.PutUint32(p[60:], uint32(int32(x*65536)))
	binary.LittleEndian.PutUint32(p[64:], uint32(int32(y*65536)))
	binary.LittleEndian.PutUint32(p[72:], math.Float32bits(throttle))
	binary.LittleEndian.PutUint32(p[76:], math.Float32bits(brake))
	return p
}

func gaugePacket(plid uint8) []byte {
	p := make([]byte, outsim.GaugeSize)
	copy(p[4:], "FBM")
	p[11] = plid
	return p
}

func axiPacket(name string) []byte {
	p := make([]byte, insim.SizeAxi)
	p[0], p[1] = insim.SizeAxi, insim.TypeAxi
	copy(p[8:39], name)
	return p
}

func staPacket(flags uint16) []byte {
	p := make([]byte, insim.SizeSta)
	p[0], p[1] = insim.SizeSta, insim.TypeSta
	binary.LittleEndian.PutUint16(p[8:], flags)
	return p
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %v", msg)
}

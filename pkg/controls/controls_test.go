package controls

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cyrilix/robocar-protobuf/go/events"
	"go.uber.org/zap"
)

type VJoyMock struct {
	initOnce   sync.Once
	conn       net.PacketConn
	notifyChan chan *DriveCommand
}

func (v *VJoyMock) Notify() <-chan *DriveCommand {
	v.initOnce.Do(func() { v.notifyChan = make(chan *DriveCommand, 10) })
	return v.notifyChan
}

func (v *VJoyMock) listen() error {
	v.initOnce.Do(func() { v.notifyChan = make(chan *DriveCommand, 10) })
	conn, err := net.ListenPacket("udp", "127.0.0.1:")
	if err != nil {
		return fmt.Errorf("unable to listen on port: %v", err)
	}
	v.conn = conn

	go func() {
		buf := make([]byte, 64)
		for {
			n, _, err := v.conn.ReadFrom(buf)
			if err != nil {
				zap.S().Debugf("connection close: %v", err)
				close(v.notifyChan)
				return
			}
			var cmd DriveCommand
			if err := cmd.UnmarshalBinary(buf[:n]); err != nil {
				zap.S().Errorf("unable to decode drive command: %v", err)
				continue
			}
			v.notifyChan <- &cmd
		}
	}()
	return nil
}

func (v *VJoyMock) Addr() string {
	return v.conn.LocalAddr().String()
}

func (v *VJoyMock) Close() error {
	if err := v.conn.Close(); err != nil {
		return fmt.Errorf("unable to close mock server: %v", err)
	}
	return nil
}

func startGateway(t *testing.T) (*Gateway, *VJoyMock) {
	vjoyMock := VJoyMock{}
	if err := vjoyMock.listen(); err != nil {
		t.Fatalf("unable to start mock vjoy: %v", err)
	}

	gw := New(vjoyMock.Addr())
	start := time.Unix(100, 0)
	gw.now = func() time.Time { return start }
	if err := gw.Start(); err != nil {
		t.Fatalf("unable to start controls gateway: %v", err)
	}
	return gw, &vjoyMock
}

func receive(t *testing.T, vjoyMock *VJoyMock) *DriveCommand {
	select {
	case cmd := <-vjoyMock.Notify():
		return cmd
	case <-time.After(time.Second):
		t.Fatalf("no drive command received")
		return nil
	}
}

func TestGateway_WriteSteering(t *testing.T) {

	cases := []struct {
		name        string
		msg         *events.SteeringMessage
		previousMsg *DriveCommand
		expectedMsg DriveCommand
	}{
		{"First Message",
			&events.SteeringMessage{Steering: 0.5, Confidence: 1},
			nil,
			DriveCommand{Steering: 0.5, Throttle: 0, Brake: 0}},
		{"Update steering",
			&events.SteeringMessage{Steering: -0.5, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0, Brake: 0},
			DriveCommand{Steering: -0.5, Throttle: 0, Brake: 0}},
		{"Update steering shouldn't erase throttle value",
			&events.SteeringMessage{Steering: -0.3, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0.6, Brake: 0.1},
			DriveCommand{Steering: -0.3, Throttle: 0.6, Brake: 0.1}},
	}

	gw, vjoyMock := startGateway(t)
	defer func() {
		gw.Stop()
		if err := vjoyMock.Close(); err != nil {
			t.Errorf("unable to stop vjoy mock: %v", err)
		}
	}()

	for _, c := range cases {
		gw.lastControl = c.previousMsg

		gw.WriteSteering(c.msg)

		ctrlMsg := receive(t, vjoyMock)
		if *ctrlMsg != c.expectedMsg {
			t.Errorf("[%v] bad message received: %#v, wants %#v", c.name, ctrlMsg, c.expectedMsg)
		}
	}
}

func TestGateway_WriteThrottle(t *testing.T) {

	cases := []struct {
		name        string
		msg         *events.ThrottleMessage
		previousMsg *DriveCommand
		expectedMsg DriveCommand
	}{
		{"First Message",
			&events.ThrottleMessage{Throttle: 0.5, Confidence: 1},
			nil,
			DriveCommand{Steering: 0, Throttle: 0.5, Brake: 0}},
		{"Update Throttle",
			&events.ThrottleMessage{Throttle: 0.6, Confidence: 1},
			&DriveCommand{Steering: 0, Throttle: 0.4, Brake: 0},
			DriveCommand{Steering: 0, Throttle: 0.6, Brake: 0}},
		{"Update steering shouldn't erase throttle value",
			&events.ThrottleMessage{Throttle: 0.3, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0.6, Brake: 0},
			DriveCommand{Steering: 0.2, Throttle: 0.3, Brake: 0}},
		{"Throttle to brake",
			&events.ThrottleMessage{Throttle: -0.7, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0.6, Brake: 0},
			DriveCommand{Steering: 0.2, Throttle: 0, Brake: 0.7}},
		{"Update brake",
			&events.ThrottleMessage{Throttle: -0.2, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0, Brake: 0.5},
			DriveCommand{Steering: 0.2, Throttle: 0, Brake: 0.2}},
		{"Brake to throttle",
			&events.ThrottleMessage{Throttle: 0.9, Confidence: 1},
			&DriveCommand{Steering: 0.2, Throttle: 0, Brake: 0.4},
			DriveCommand{Steering: 0.2, Throttle: 0.9, Brake: 0}},
	}

	gw, vjoyMock := startGateway(t)
	defer func() {
		gw.Stop()
		if err := vjoyMock.Close(); err != nil {
			t.Errorf("unable to stop vjoy mock: %v", err)
		}
	}()

	for _, c := range cases {
		gw.lastControl = c.previousMsg

		gw.WriteThrottle(c.msg)

		ctrlMsg := receive(t, vjoyMock)
		if *ctrlMsg != c.expectedMsg {
			t.Errorf("[%v] bad message received: %#v, wants %#v", c.name, ctrlMsg, c.expectedMsg)
		}
	}
}

func TestGateway_ShiftGear(t *testing.T) {
	gw, vjoyMock := startGateway(t)
	defer func() {
		gw.Stop()
		if err := vjoyMock.Close(); err != nil {
			t.Errorf("unable to stop vjoy mock: %v", err)
		}
	}()

	gw.ShiftGear(1)
	if cmd := receive(t, vjoyMock); cmd.GearDelta != 1 {
		t.Errorf("bad gear delta: %v, wants 1", cmd.GearDelta)
	}

	gw.WriteSteering(&events.SteeringMessage{Steering: 0.1})
	if cmd := receive(t, vjoyMock); cmd.GearDelta != 0 {
		t.Errorf("gear delta must be sent once: %v", cmd.GearDelta)
	}
}

func TestDriveCommand_MarshalBinary(t *testing.T) {
	cmd := DriveCommand{Steering: -1, Throttle: 0.5, Brake: 0.25, Clutch: 1, GearDelta: -1, Time: 2}
	content, err := cmd.MarshalBinary()
	if err != nil {
		t.Fatalf("unable to marshal drive command: %v", err)
	}
	expected := []byte{
		0x00, 0x00, 0x80, 0xbf,
		0x00, 0x00, 0x00, 0x3f,
		0x00, 0x00, 0x80, 0x3e,
		0x00, 0x00, 0x80, 0x3f,
		0xff, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x00, 0x40,
	}
	if string(content) != string(expected) {
		t.Errorf("bad encoding: %x, wants %x", content, expected)
	}

	if err := cmd.UnmarshalBinary(content[:20]); err == nil {
		t.Errorf("short packet must be rejected")
	}
}

func TestGateway_Time(t *testing.T) {
	gw, vjoyMock := startGateway(t)
	defer func() {
		gw.Stop()
		if err := vjoyMock.Close(); err != nil {
			t.Errorf("unable to stop vjoy mock: %v", err)
		}
	}()

	gw.now = func() time.Time { return gw.start.Add(1500 * time.Millisecond) }
	gw.WriteSteering(&events.SteeringMessage{Steering: 0.1})
	if cmd := receive(t, vjoyMock); cmd.Time != 1.5 {
		t.Errorf("bad command time: %v, wants 1.5", cmd.Time)
	}
}

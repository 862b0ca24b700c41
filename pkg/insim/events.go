package insim

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
)

// Event is the outcome of an inbound packet.
type Event interface {
	fmt.Stringer
}

// KeepAlive must be answered by writing Reply back to the simulator.
type KeepAlive struct {
	Reply []byte
}

func (k KeepAlive) String() string { return "keep alive" }

// LayoutLoaded announces the name of the active autocross layout, without extension.
type LayoutLoaded struct {
	Name       string
	NumObjects uint16
}

func (l LayoutLoaded) String() string { return fmt.Sprintf("layout %q", l.Name) }

type RaceStart struct{}

func (RaceStart) String() string { return "race start" }

type StateChanged struct {
	State State
}

func (s StateChanged) String() string { return fmt.Sprintf("state %v", s.State) }

// ObjectHit is sent when a car hits an autocross object.
type ObjectHit struct {
	PLID uint8
	// Time since the start of the race in ms
	Time uint32
	// Closing speed in m/s
	ClosingSpeed float64
	// Object position in meters
	X, Y        float64
	ObjectIndex uint8
	// Cone is false when the object is not a cone
	Cone     bool
	ConeType cone.Type
	Flags    uint8
}

func (o ObjectHit) String() string {
	return fmt.Sprintf("object %d hit by player %d at (%.1f, %.1f)", o.ObjectIndex, o.PLID, o.X, o.Y)
}

// Command is a text command typed in the simulator, with the InSim prefix or /o.
type Command struct {
	UCID uint8
	PLID uint8
	Text string
}

func (c Command) String() string { return fmt.Sprintf("command %q", c.Text) }

// message user types
const (
	msoPrefix = 2
	msoO      = 3
)

// ObjectHit flags
const (
	HitLayoutObject = 1 << 0
	HitCanMove      = 1 << 1
	HitWasMoving    = 1 << 2
	HitOnSpot       = 1 << 3
)

type wireTiny struct {
	Size uint8
	Type uint8
	ReqI uint8
	SubT uint8
}

type wireAxi struct {
	Size    uint8
	Type    uint8
	ReqI    uint8
	Zero    uint8
	AXStart uint8
	NumCP   uint8
	NumO    uint16
	LName   [32]byte
}

type wireObh struct {
	Size    uint8
	Type    uint8
	ReqI    uint8
	PLID    uint8
	SpClose uint16
	Time    uint16

	CarDirection uint8
	CarHeading   uint8
	CarSpeed     uint8
	CarZbyte     uint8
	CarX         int16
	CarY         int16

	X        int16
	Y        int16
	Zbyte    uint8
	_        uint8
	Index    uint8
	OBHFlags uint8
}

// Handle decodes one packet as returned by Next. Unknown packet types give a nil Event and no error.
func Handle(packet []byte) (Event, error) {
	if len(packet) < 2 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("%d bytes packet", len(packet))}
	}

	switch packet[1] {
	case TypeTiny:
		var tiny wireTiny
		if err := decode(packet, SizeTiny, &tiny); err != nil {
			return nil, err
		}
		if tiny.SubT != TinyNone {
			return nil, nil
		}
		reply := make([]byte, len(packet))
		copy(reply, packet)
		return KeepAlive{Reply: reply}, nil

	case TypeAxi:
		var axi wireAxi
		if err := decode(packet, SizeAxi, &axi); err != nil {
			return nil, err
		}
		return LayoutLoaded{Name: string(bytes.ReplaceAll(axi.LName[:], []byte{0}, nil)), NumObjects: axi.NumO}, nil

	case TypeRst:
		return RaceStart{}, nil

	case TypeSta:
		s, err := decodeState(packet)
		if err != nil {
			return nil, err
		}
		return StateChanged{State: *s}, nil

	case TypeObh:
		var obh wireObh
		if err := decode(packet, SizeObh, &obh); err != nil {
			return nil, err
		}
		hit := ObjectHit{
			PLID:         obh.PLID,
			Time:         uint32(obh.Time) * 10,
			ClosingSpeed: float64(obh.SpClose&0x0fff) / 10,
			X:            float64(obh.X) / 16,
			Y:            float64(obh.Y) / 16,
			ObjectIndex:  obh.Index,
			Flags:        obh.OBHFlags,
		}
		hit.ConeType, hit.Cone = cone.LFSObjects.TypeOf(obh.Index)
		return hit, nil

	case TypeMso:
		if len(packet) < minSizeMso {
			return nil, &ProtocolError{Type: TypeMso, Reason: fmt.Sprintf("%d bytes, want at least %d", len(packet), minSizeMso)}
		}
		userType := packet[6]
		if userType != msoPrefix && userType != msoO {
			return nil, nil
		}
		msg := packet[minSizeMso:]
		if start := int(packet[7]); start <= len(msg) {
			msg = msg[start:]
		}
		return Command{UCID: packet[4], PLID: packet[5], Text: cString(msg)}, nil
	}
	return nil, nil
}

func decode(packet []byte, size int, data interface{}) error {
	if err := checkSize(packet, size); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(packet), binary.LittleEndian, data); err != nil {
		return &ProtocolError{Type: packet[1], Reason: fmt.Sprintf("unable to unpack: %v", err)}
	}
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

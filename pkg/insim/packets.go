package insim

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cyrilix/robocar-lfsd/pkg/layout"
)

// ISI flags
const (
	FlagLocal = 4
	FlagObh   = 128
)

const (
	jrrReset      = 4
	jrrStartPoint = 0x80
	groundZbyte   = 240
)

type wireISI struct {
	Size     uint8
	Type     uint8
	ReqI     uint8
	Zero     uint8
	UDPPort  uint16
	Flags    uint16
	Sp0      uint8
	Prefix   byte
	Interval uint16
	Admin    [16]byte
	IName    [16]byte
}

type wireMst struct {
	Size uint8
	Type uint8
	ReqI uint8
	Zero uint8
	Msg  [64]byte
}

type wireJrr struct {
	Size      uint8
	Type      uint8
	ReqI      uint8
	PLID      uint8
	UCID      uint8
	JRRAction uint8
	Sp2       uint8
	Sp3       uint8
	X         int16
	Y         int16
	Zbyte     uint8
	Flags     uint8
	Index     uint8
	Heading   uint8
}

// Init returns the initialisation packet, to be sent first on a new connection.
// programName and password are truncated to 15 bytes.
func Init(programName, password string, flags uint16, prefix byte) []byte {
	isi := wireISI{
		Size:   SizeISI,
		Type:   TypeISI,
		ReqI:   1,
		Flags:  flags,
		Prefix: prefix,
	}
	copy(isi.Admin[:len(isi.Admin)-1], password)
	copy(isi.IName[:len(isi.IName)-1], programName)
	return encode(&isi)
}

// RequestLayout asks for the active layout name, answered with a LayoutLoaded event.
func RequestLayout() []byte {
	return []byte{SizeTiny, TypeTiny, 1, TinyAxi}
}

// RequestState asks for the simulator state, answered with a StateChanged event.
func RequestState() []byte {
	return []byte{SizeTiny, TypeTiny, 1, TinySst}
}

// Message sends text or a command (starting with /) as if typed by the host.
// The text is truncated to 63 bytes.
func Message(text string) []byte {
	mst := wireMst{Size: SizeMst, Type: TypeMst}
	copy(mst.Msg[:len(mst.Msg)-1], text)
	return encode(&mst)
}

// PressKey simulates a key press, "p" toggles pause.
func PressKey(key string) []byte {
	return Message("/press " + key)
}

// Say writes msg in the chat.
func Say(msg string) []byte {
	return Message(msg)
}

// Teleport moves player plid to (x, y) in meters, facing yaw radians (0 along +x).
// Coordinates are truncated to 1/16 m and the heading uses the layout heading mapping.
func Teleport(x, y, yaw float64, plid uint8) []byte {
	jrr := wireJrr{
		Size:      SizeJrr,
		Type:      TypeJrr,
		PLID:      plid,
		JRRAction: jrrReset,
		X:         int16(x * layout.Scale),
		Y:         int16(y * layout.Scale),
		Zbyte:     groundZbyte,
		Flags:     jrrStartPoint,
		Heading:   layout.HeadingByte(yaw - math.Pi/2),
	}
	return encode(&jrr)
}

func encode(data interface{}) []byte {
	buf := bytes.Buffer{}
	// writing fixed size structs into a bytes.Buffer cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, data)
	return buf.Bytes()
}

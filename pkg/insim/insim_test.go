package insim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func axiPacket(name string) []byte {
	axi := wireAxi{Size: SizeAxi, Type: TypeAxi, NumO: 12}
	copy(axi.LName[:], name)
	return encode(&axi)
}

func staPacket(flags uint16, track string) []byte {
	sta := wireSta{Size: SizeSta, Type: TypeSta, ReplaySpeed: 1, Flags: flags, NumP: 1, RaceInProg: 1, Weather: 2}
	copy(sta.Track[:], track)
	return encode(&sta)
}

func TestNext(t *testing.T) {
	keepAlive := []byte{4, TypeTiny, 0, TinyNone}
	axi := axiPacket("autocross")
	stream := append(append(append([]byte{}, keepAlive...), axi...), 28, TypeSta, 0)

	packet, rest, err := Next(stream)
	require.NoError(t, err)
	assert.Equal(t, keepAlive, packet)

	packet, rest, err = Next(rest)
	require.NoError(t, err)
	assert.Equal(t, axi, packet)

	// state packet only partially received
	packet, rest2, err := Next(rest)
	assert.True(t, errors.Is(err, ErrIncomplete))
	assert.Nil(t, packet)
	assert.Equal(t, rest, rest2)

	_, _, err = Next(nil)
	assert.True(t, errors.Is(err, ErrIncomplete))

	_, _, err = Next([]byte{0, 3})
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.False(t, errors.Is(err, ErrIncomplete))
}

func TestNext_GrowingBuffer(t *testing.T) {
	stream := append(staPacket(StatePaused, "BL1"), RequestLayout()...)

	var buf []byte
	var packets [][]byte
	for _, b := range stream {
		buf = append(buf, b)
		for {
			packet, rest, err := Next(buf)
			if errors.Is(err, ErrIncomplete) {
				break
			}
			require.NoError(t, err)
			packets = append(packets, packet)
			buf = rest
		}
	}
	require.Len(t, packets, 2)
	assert.Len(t, packets[0], SizeSta)
	assert.Equal(t, RequestLayout(), packets[1])
	assert.Empty(t, buf)
}

func TestHandle_KeepAlive(t *testing.T) {
	packet := []byte{4, TypeTiny, 0, TinyNone}
	event, err := Handle(packet)
	require.NoError(t, err)
	require.IsType(t, KeepAlive{}, event)
	assert.Equal(t, packet, event.(KeepAlive).Reply)

	// reply does not alias the read buffer
	packet[2] = 9
	assert.Equal(t, uint8(0), event.(KeepAlive).Reply[2])

	event, err = Handle([]byte{4, TypeTiny, 0, TinyAxi})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestHandle_Layout(t *testing.T) {
	event, err := Handle(axiPacket("BL4_skidpad"))
	require.NoError(t, err)
	assert.Equal(t, LayoutLoaded{Name: "BL4_skidpad", NumObjects: 12}, event)
}

func TestHandle_State(t *testing.T) {
	event, err := Handle(staPacket(StateInGame|StatePaused, "AU1"))
	require.NoError(t, err)
	require.IsType(t, StateChanged{}, event)

	s := event.(StateChanged).State
	assert.True(t, s.Paused())
	assert.Equal(t, "AU1", s.Track)
	assert.Equal(t, 1.0, s.ReplaySpeed)
	assert.Equal(t, uint8(1), s.NumPlayers)
	assert.Equal(t, uint8(2), s.Weather)

	event, err = Handle(staPacket(StateInGame, "AU1"))
	require.NoError(t, err)
	assert.False(t, event.(StateChanged).State.Paused())
}

func TestHandle_RaceStart(t *testing.T) {
	packet := make([]byte, 28)
	packet[0], packet[1] = 28, TypeRst
	event, err := Handle(packet)
	require.NoError(t, err)
	assert.Equal(t, RaceStart{}, event)
}

func TestHandle_ObjectHit(t *testing.T) {
	obh := wireObh{
		Size:     SizeObh,
		Type:     TypeObh,
		PLID:     2,
		SpClose:  0xf000 | 55,
		Time:     1234,
		X:        160,
		Y:        -80,
		Index:    29,
		OBHFlags: HitLayoutObject | HitWasMoving,
	}
	event, err := Handle(encode(&obh))
	require.NoError(t, err)
	hit := event.(ObjectHit)
	assert.Equal(t, uint8(2), hit.PLID)
	assert.Equal(t, uint32(12340), hit.Time)
	assert.InDelta(t, 5.5, hit.ClosingSpeed, 1e-9)
	assert.Equal(t, 10.0, hit.X)
	assert.Equal(t, -5.0, hit.Y)
	assert.True(t, hit.Cone)
	assert.Equal(t, cone.TypeYellow, hit.ConeType)
	assert.NotZero(t, hit.Flags&HitLayoutObject)
}

func TestHandle_Command(t *testing.T) {
	msg := []byte{0, TypeMso, 0, 0, 3, 1, msoPrefix, 7}
	msg = append(msg, []byte("driver: !reset")...)
	msg = append(msg, 0, 0)
	msg[0] = uint8(len(msg))

	event, err := Handle(msg)
	require.NoError(t, err)
	assert.Equal(t, Command{UCID: 3, PLID: 1, Text: " !reset"}, event)

	msg[6] = 1
	event, err = Handle(msg)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestHandle_Errors(t *testing.T) {
	_, err := Handle([]byte{3, TypeTiny, 0})
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = Handle(staPacket(0, "BL1")[:20])
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, uint8(TypeSta), pe.Type)

	event, err := Handle([]byte{4, 200, 0, 0})
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestInit(t *testing.T) {
	packet := Init("lfsd-0123456789abcdef", "secret", FlagObh, ' ')
	require.Len(t, packet, SizeISI)
	assert.Equal(t, []byte{44, 1, 1, 0, 0, 0, FlagObh, 0, 0, ' ', 0, 0}, packet[:12])
	assert.Equal(t, "secret", cString(packet[12:28]))
	assert.Equal(t, "lfsd-0123456789", cString(packet[28:44]))
	assert.Equal(t, uint8(0), packet[43])
}

func TestRequests(t *testing.T) {
	assert.Equal(t, []byte{4, 3, 1, 20}, RequestLayout())
	assert.Equal(t, []byte{4, 3, 1, 7}, RequestState())
}

func TestPressKey(t *testing.T) {
	packet := PressKey("p")
	require.Len(t, packet, SizeMst)
	assert.Equal(t, []byte{68, 13, 0, 0}, packet[:4])
	assert.Equal(t, "/press p", cString(packet[4:]))

	long := Say(string(bytes.Repeat([]byte("a"), 100)))
	require.Len(t, long, SizeMst)
	assert.Equal(t, uint8(0), long[SizeMst-1])
}

func TestTeleport(t *testing.T) {
	packet := Teleport(10.5, -3.03, math.Pi/2+0.001, 3)
	require.Len(t, packet, SizeJrr)

	var jrr wireJrr
	require.NoError(t, binary.Read(bytes.NewReader(packet), binary.LittleEndian, &jrr))
	assert.Equal(t, uint8(16), jrr.Size)
	assert.Equal(t, uint8(58), jrr.Type)
	assert.Equal(t, uint8(3), jrr.PLID)
	assert.Equal(t, uint8(4), jrr.JRRAction)
	assert.Equal(t, int16(168), jrr.X)
	// truncated toward zero
	assert.Equal(t, int16(-48), jrr.Y)
	assert.Equal(t, uint8(240), jrr.Zbyte)
	assert.Equal(t, uint8(0x80), jrr.Flags)
	assert.Equal(t, uint8(0), jrr.Index)
	// facing +y is the layout heading 128
	assert.Equal(t, uint8(128), jrr.Heading)
}

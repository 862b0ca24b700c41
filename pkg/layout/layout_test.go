package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCones() ConeMap {
	var cones ConeMap
	cones[cone.TypeBlue] = []mgl64.Vec2{{0, 2}, {10, 2}, {20, 4}, {20, 10}}
	cones[cone.TypeYellow] = []mgl64.Vec2{{0, -2}, {10, -2}, {24, 2}, {24, 12}}
	cones[cone.TypeOrangeBig] = []mgl64.Vec2{{-1, 2.5}, {-1, -2.5}}
	cones[cone.TypeOrangeSmall] = []mgl64.Vec2{{-2, 3.0625}}
	return cones
}

func rawLayout(t *testing.T, h Header, blocks ...Block) []byte {
	t.Helper()
	buf := bytes.Buffer{}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	if len(blocks) > 0 {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, blocks))
	}
	return buf.Bytes()
}

func header(n int16) Header {
	h := Header{Revision: 251, NumObjects: n, Laps: 1}
	copy(h.Magic[:], Magic)
	return h
}

func TestDecode(t *testing.T) {
	data := rawLayout(t, header(4),
		Block{X: 160, Y: -32, Index: 29, Zbyte: 240},
		Block{X: 16, Y: 8, Index: 23},
		// start position, not a cone
		Block{X: 1000, Y: 1000, Index: 0},
		Block{X: -8, Y: 0, Index: 27},
	)

	cones, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 3, cones.Len())
	assert.Equal(t, []mgl64.Vec2{{10, -2}}, cones[cone.TypeYellow])
	assert.Equal(t, []mgl64.Vec2{{1, 0.5}}, cones[cone.TypeBlue])
	assert.Equal(t, []mgl64.Vec2{{-0.5, 0}}, cones[cone.TypeOrangeBig])
	assert.Empty(t, cones[cone.TypeUnknown])
	assert.Empty(t, cones[cone.TypeOrangeSmall])
}

func TestDecode_Empty(t *testing.T) {
	cones, err := Decode(rawLayout(t, header(0)))
	require.NoError(t, err)
	assert.Equal(t, 0, cones.Len())
}

func TestDecode_Errors(t *testing.T) {
	badMagic := header(0)
	copy(badMagic.Magic[:], "LFSXXX")
	badVersion := header(0)
	badVersion.Version = 1
	badRevision := header(0)
	badRevision.Revision = 253
	maxRevision := header(0)
	maxRevision.Revision = MaxRevision

	cases := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"bad magic", rawLayout(t, badMagic), ErrBadMagic},
		{"version", rawLayout(t, badVersion), ErrUnsupportedFile},
		{"revision", rawLayout(t, badRevision), ErrUnsupportedFile},
		{"short header", []byte("LFSLYT"), ErrTruncated},
		{"partial block", append(rawLayout(t, header(1)), 1, 2, 3), ErrTruncated},
		{"max revision", rawLayout(t, maxRevision), nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cones, err := Decode(c.data)
			if c.expected == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.expected), "unexpected error %v", err)
			var fe *FormatError
			assert.True(t, errors.As(err, &fe))
			assert.Equal(t, 0, cones.Len())
		})
	}
}

func TestEncode_Header(t *testing.T) {
	data, err := DefaultCodec.Encode(mgl64.Vec2{}, testCones())
	require.NoError(t, err)

	// 3 control objects + 11 cones
	require.Len(t, data, HeaderSize+14*BlockSize)
	assert.Equal(t, []byte(Magic), data[:6])
	assert.Equal(t, uint8(0), data[6])
	assert.Equal(t, uint8(251), data[7])
	assert.Equal(t, int16(14), int16(binary.LittleEndian.Uint16(data[8:10])))
	assert.Equal(t, uint8(10), data[10])
	assert.Equal(t, uint8(8), data[11])
}

func TestEncode_ControlObjects(t *testing.T) {
	data, err := DefaultCodec.Encode(mgl64.Vec2{}, testCones())
	require.NoError(t, err)

	blocks := make([]Block, 14)
	require.NoError(t, binary.Read(bytes.NewReader(data[HeaderSize:]), binary.LittleEndian, blocks))

	// start: between blue (20, 4) and yellow (24, 2), facing along +x
	assert.Equal(t, Block{X: 352, Y: 48, Zbyte: 240, Flags: 0, Index: 0, Heading: 128}, blocks[0])

	// finish: between the big orange cones, 5m apart, 15m wide
	finish := blocks[1]
	assert.Equal(t, int16(-16), finish.X)
	assert.Equal(t, int16(0), finish.Y)
	assert.Equal(t, uint8(7<<2), finish.Flags)
	assert.Equal(t, uint8(0), finish.Index)
	assert.Equal(t, HeadingByte(math.Atan2(128, 320)+math.Pi/2), finish.Heading)

	// checkpoint: blue (20, 4) and nearest yellow (24, 2)
	check := blocks[2]
	assert.Equal(t, int16(352), check.X)
	assert.Equal(t, int16(48), check.Y)
	width := 5 * math.Hypot(64, 32) / 16
	assert.Equal(t, uint8(int(width/2)<<2|1), check.Flags)
	assert.Equal(t, uint8(1), check.Flags&1)

	// first cone: yellow (0, -2), pointing to the next yellow
	assert.Equal(t, Block{X: 0, Y: -32, Zbyte: 240, Index: 29, Heading: 128}, blocks[3])
	// last yellow loops back to the first
	assert.Equal(t, HeadingByte(math.Atan2(-224, -384)), blocks[6].Heading)
	assert.Equal(t, uint8(23), blocks[7].Index)
	// small orange is written as object 20
	assert.Equal(t, uint8(20), blocks[11].Index)
	assert.Equal(t, uint8(27), blocks[13].Index)
}

func randomCones(rnd *rand.Rand) ConeMap {
	var cones ConeMap
	for _, ct := range cone.Types {
		n := rnd.Intn(20)
		if ct == cone.TypeLeft || ct == cone.TypeRight || ct == cone.TypeStartFinishLine {
			n += 2
		}
		for i := 0; i < n; i++ {
			// multiples of 1/16 m inside the int16 range of every world
			cones[ct] = append(cones[ct], mgl64.Vec2{
				float64(rnd.Intn(16000)-8000) / Scale,
				float64(rnd.Intn(16000)-8000) / Scale,
			})
		}
	}
	return cones
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(16))
	worlds := []World{WorldBlackwood, WorldAutocross1, WorldAutocross2, WorldAutocross3, WorldWesthill, WorldLayoutSq}

	for _, w := range worlds {
		offset, err := w.Offset()
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			cones := randomCones(rnd)

			data, err := Encode(w, cones)
			require.NoError(t, err, "world %v", w)
			decoded, err := Decode(data)
			require.NoError(t, err, "world %v", w)

			assert.Equal(t, cones, decoded.Translate(offset.Mul(-1)), "world %v, set %d", w, i)
		}
	}
}

func TestEncode_Errors(t *testing.T) {
	noLeft := testCones()
	noLeft[cone.TypeLeft] = noLeft[cone.TypeLeft][:1]
	noFinish := testCones()
	noFinish[cone.TypeStartFinishLine] = nil

	for name, cones := range map[string]ConeMap{"left": noLeft, "finish": noFinish} {
		_, err := DefaultCodec.Encode(mgl64.Vec2{}, cones)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrIncompleteTrack), name)
		var ce *ConfigError
		assert.True(t, errors.As(err, &ce), name)
	}

	far := testCones()
	far[cone.TypeUnknown] = []mgl64.Vec2{{3000, 0}}
	_, err := DefaultCodec.Encode(mgl64.Vec2{}, far)
	assert.True(t, errors.Is(err, ErrOutOfRange), "unexpected error %v", err)
}

func TestWorld_Offset(t *testing.T) {
	o, err := World("au1").Offset()
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec2{-50, -1010}, o)

	_, err = World("XX9").Offset()
	assert.True(t, errors.Is(err, ErrUnknownWorld))
}

func TestHeadingByte(t *testing.T) {
	cases := []struct {
		rad      float64
		expected uint8
	}{
		{0, 128},
		{math.Pi/2 + 0.001, 192},
		{-math.Pi/2 + 0.001, 64},
		{math.Pi - 0.001, 255},
		{-math.Pi + 0.001, 0},
		{3*math.Pi + 0.001, 0},
		{-3*math.Pi/2 + 0.001, 192},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, HeadingByte(c.rad), "heading %v", c.rad)
	}
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, 2, floorDiv(5, 2))
	assert.Equal(t, -3, floorDiv(-5, 2))
	assert.Equal(t, -2, floorDiv(-4, 2))
}

func TestWriteLoad(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, WorldAutocross3, "test", testCones())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AU3_test.lyt"), path)

	cones, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testCones().Len(), cones.Len())

	_, err = Load(filepath.Join(dir, "AU3_test.txt"))
	assert.True(t, errors.Is(err, ErrInvalidExtension))

	broken := filepath.Join(dir, "broken.lyt")
	require.NoError(t, os.WriteFile(broken, []byte("LFSLYT"), 0o644))
	_, err = Load(broken)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, broken, fe.Path)
}

func TestTrack(t *testing.T) {
	dir := t.TempDir()
	track := NewTrack(WorldAutocross1, "oval", testCones())
	content, err := track.Marshal()
	require.NoError(t, err)

	path := filepath.Join(dir, "oval.yaml")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	loaded, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Equal(t, WorldAutocross1, loaded.World)
	assert.Equal(t, "oval", loaded.Name)

	cones, err := loaded.ConeMap()
	require.NoError(t, err)
	assert.Equal(t, testCones(), cones)

	unknown := Track{World: WorldBlackwood, Name: "x", Cones: map[string][][2]float64{"purple": {{1, 1}}}}
	_, err = unknown.ConeMap()
	assert.Error(t, err)
}

func TestTrack_Aliases(t *testing.T) {
	track := Track{World: WorldBlackwood, Name: "alias", Cones: map[string][][2]float64{
		"right":  {{3, 0}},
		"yellow": {{1, 0}, {2, 0}},
		"left":   {{1, 2}},
	}}

	for i := 0; i < 20; i++ {
		cones, err := track.ConeMap()
		require.NoError(t, err)
		assert.Equal(t, []mgl64.Vec2{{1, 0}, {2, 0}, {3, 0}}, cones[cone.TypeYellow])
		assert.Equal(t, []mgl64.Vec2{{1, 2}}, cones[cone.TypeBlue])
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "AU1_oval.lyt", FileName("au1", "oval"))
	assert.Equal(t, "BL4_oval.lyt", FileName(WorldBlackwood, "oval"))

	dir := t.TempDir()
	content := "world: au1\nname: lower\ncones:\n  blue: [[0, 2], [10, 2]]\n  yellow: [[0, -2], [10, -2]]\n  orange_big: [[-1, 2.5], [-1, -2.5]]\n"
	path := filepath.Join(dir, "lower.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	track, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Equal(t, WorldAutocross1, track.World)
}

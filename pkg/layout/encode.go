package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// puts objects on the ground
	groundZbyte = 240

	writeRevision = 251
	writeLaps     = 10
	writeFlags    = 8

	startIndex        = 0
	checkpointFirst   = 1
	maxHalfWidthBits  = 31
	finishWidthFactor = 3
	checkWidthFactor  = 5
)

type point struct {
	x, y int
}

func (p point) sub(o point) point {
	return point{p.x - o.x, p.y - o.y}
}

func (p point) heading() float64 {
	return math.Atan2(float64(p.y), float64(p.x))
}

func (p point) dist(o point) float64 {
	return math.Hypot(float64(p.x-o.x), float64(p.y-o.y))
}

func midpoint(a, b point) point {
	return point{floorDiv(a.x+b.x, 2), floorDiv(a.y+b.y, 2)}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Encode builds a complete layout: a start position, a finish line, one checkpoint,
// then every cone in type order. offset (meters) is added to all cone positions.
func (c Codec) Encode(offset mgl64.Vec2, cones ConeMap) ([]byte, error) {
	var inMap [cone.NumTypes][]point
	for t, l := range cones {
		inMap[t] = make([]point, len(l))
		for i, p := range l {
			x := int(p.X()*Scale + offset.X()*Scale)
			y := int(p.Y()*Scale + offset.Y()*Scale)
			if x < math.MinInt16 || x > math.MaxInt16 || y < math.MinInt16 || y > math.MaxInt16 {
				return nil, &FormatError{Reason: fmt.Sprintf("%v cone %d at (%v, %v)", cone.Type(t), i, p.X(), p.Y()), Err: ErrOutOfRange}
			}
			inMap[t][i] = point{x, y}
		}
	}

	left := inMap[cone.TypeLeft]
	right := inMap[cone.TypeRight]
	startFinish := inMap[cone.TypeStartFinishLine]
	for _, req := range []struct {
		t  cone.Type
		ps []point
	}{{cone.TypeLeft, left}, {cone.TypeRight, right}, {cone.TypeStartFinishLine, startFinish}} {
		if len(req.ps) < 2 {
			return nil, &ConfigError{Field: req.t.String(), Reason: fmt.Sprintf("needs at least 2 cones, got %d", len(req.ps)), Err: ErrIncompleteTrack}
		}
	}

	blocks := make([]Block, 0, 3+cones.Len())

	start := midpoint(left[len(left)-2], right[len(right)-2])
	startHeading := left[len(left)-2].sub(left[len(left)-1]).heading() + math.Pi/2
	blocks = append(blocks, controlBlock(start, startHeading, 0))

	finish := midpoint(startFinish[0], startFinish[1])
	finishWidth := finishWidthFactor * startFinish[0].dist(startFinish[1]) / Scale
	finishHeading := left[len(left)-1].sub(left[0]).heading() + math.Pi/2
	blocks = append(blocks, controlBlock(finish, finishHeading, widthFlags(finishWidth)))

	// roughly half way round so that lap times are counted
	half := len(left) / 2
	leftHalf := left[half]
	rightHalf := right[0]
	for _, r := range right[1:] {
		if leftHalf.dist(r) < leftHalf.dist(rightHalf) {
			rightHalf = r
		}
	}
	check := midpoint(leftHalf, rightHalf)
	checkWidth := checkWidthFactor * leftHalf.dist(rightHalf) / Scale
	checkHeading := left[half-1].sub(leftHalf).heading() + math.Pi/2
	blocks = append(blocks, controlBlock(check, checkHeading, widthFlags(checkWidth)|checkpointFirst))

	for _, t := range cone.Types {
		blocks = append(blocks, c.coneBlocks(inMap[t], c.Objects.ObjectOf(t))...)
	}

	if len(blocks) > math.MaxInt16 {
		return nil, &FormatError{Reason: fmt.Sprintf("%d objects", len(blocks)), Err: ErrOutOfRange}
	}

	header := Header{
		Version:    0,
		Revision:   writeRevision,
		NumObjects: int16(len(blocks)),
		Laps:       writeLaps,
		Flags:      writeFlags,
	}
	copy(header.Magic[:], Magic)

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(blocks)*BlockSize))
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("unable to write layout header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, blocks); err != nil {
		return nil, fmt.Errorf("unable to write layout blocks: %w", err)
	}
	return buf.Bytes(), nil
}

// coneBlocks orients each cone toward the next one, the last toward the first.
func (c Codec) coneBlocks(trace []point, objectIndex uint8) []Block {
	blocks := make([]Block, len(trace))
	for i, p := range trace {
		next := trace[(i+1)%len(trace)]
		blocks[i] = Block{
			X:       int16(p.x),
			Y:       int16(p.y),
			Zbyte:   groundZbyte,
			Index:   objectIndex,
			Heading: HeadingByte(next.sub(p).heading()),
		}
	}
	return blocks
}

func controlBlock(p point, heading float64, flags uint8) Block {
	return Block{
		X:       int16(p.x),
		Y:       int16(p.y),
		Zbyte:   groundZbyte,
		Flags:   flags,
		Index:   startIndex,
		Heading: HeadingByte(heading),
	}
}

// widthFlags stores the half width in meters in bits 2-6.
func widthFlags(width float64) uint8 {
	half := int(width / 2)
	if half > maxHalfWidthBits {
		half = maxHalfWidthBits
	}
	if half < 1 {
		half = 1
	}
	return uint8(half << 2)
}

// Encode builds layout bytes for a world with the default codec.
func Encode(world World, cones ConeMap) ([]byte, error) {
	offset, err := world.Offset()
	if err != nil {
		return nil, err
	}
	return DefaultCodec.Encode(offset, cones)
}

// FileName is the name the simulator expects for a layout of a world.
func FileName(world World, name string) string {
	return fmt.Sprintf("%s_%s%s", world.Canonical(), name, Extension)
}

// Write encodes cones for world and stores them as <dir>/<world>_<name>.lyt.
func Write(dir string, world World, name string, cones ConeMap) (string, error) {
	data, err := Encode(world, cones)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(world, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("unable to write layout %v: %w", path, err)
	}
	return path, nil
}

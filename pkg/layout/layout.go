// Package layout reads and writes Live for Speed autocross layout files (.lyt).
//
// A file is a 12 bytes header followed by 8 bytes object blocks. Positions are stored as
// int16 in 1/16 meter units. Only cone objects are kept when decoding.
package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	Magic       = "LFSLYT"
	Extension   = ".lyt"
	Scale       = 16
	MaxVersion  = 0
	MaxRevision = 252

	HeaderSize = 12
	BlockSize  = 8
)

// Header is the fixed file header.
type Header struct {
	Magic      [6]byte
	Version    uint8
	Revision   uint8
	NumObjects int16
	Laps       uint8
	Flags      uint8
}

// Block is one placed object.
type Block struct {
	X       int16
	Y       int16
	Zbyte   uint8
	Flags   uint8
	Index   uint8
	Heading uint8
}

// ConeMap holds cone positions in meters, one list per cone.Type.
type ConeMap [cone.NumTypes][]mgl64.Vec2

// Len returns the total number of cones.
func (m ConeMap) Len() int {
	n := 0
	for _, l := range m {
		n += len(l)
	}
	return n
}

// Translate returns a copy of m with every cone moved by offset.
func (m ConeMap) Translate(offset mgl64.Vec2) ConeMap {
	var moved ConeMap
	for t, l := range m {
		if l == nil {
			continue
		}
		moved[t] = make([]mgl64.Vec2, len(l))
		for i, p := range l {
			moved[t][i] = p.Add(offset)
		}
	}
	return moved
}

// Codec converts between layout bytes and cone maps using an object table.
type Codec struct {
	Objects *cone.ObjectTable
}

// DefaultCodec uses the Live for Speed object indices.
var DefaultCodec = Codec{Objects: cone.LFSObjects}

// Decode parses a layout file content. Nothing is returned on error.
func (c Codec) Decode(data []byte) (ConeMap, error) {
	if len(data) < HeaderSize {
		return ConeMap{}, &FormatError{Reason: fmt.Sprintf("header needs %d bytes, got %d", HeaderSize, len(data)), Err: ErrTruncated}
	}

	var header Header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return ConeMap{}, &FormatError{Reason: "unable to read header", Err: err}
	}
	if err := verifyHeader(&header); err != nil {
		return ConeMap{}, err
	}

	body := data[HeaderSize:]
	if len(body)%BlockSize != 0 {
		return ConeMap{}, &FormatError{Reason: fmt.Sprintf("%d trailing bytes after object blocks", len(body)%BlockSize), Err: ErrTruncated}
	}

	var cones ConeMap
	if len(body) == 0 {
		return cones, nil
	}

	blocks := make([]Block, len(body)/BlockSize)
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, blocks); err != nil {
		return ConeMap{}, &FormatError{Reason: "unable to read object blocks", Err: err}
	}

	for _, b := range blocks {
		ct, ok := c.Objects.TypeOf(b.Index)
		if !ok {
			continue
		}
		cones[ct] = append(cones[ct], mgl64.Vec2{float64(b.X) / Scale, float64(b.Y) / Scale})
	}
	return cones, nil
}

func verifyHeader(h *Header) error {
	if string(h.Magic[:]) != Magic {
		return &FormatError{Reason: fmt.Sprintf("file type %q", h.Magic[:]), Err: ErrBadMagic}
	}
	if h.Version > MaxVersion {
		return &FormatError{Reason: fmt.Sprintf("version %d", h.Version), Err: ErrUnsupportedFile}
	}
	if h.Revision > MaxRevision {
		return &FormatError{Reason: fmt.Sprintf("revision %d", h.Revision), Err: ErrUnsupportedFile}
	}
	return nil
}

// Decode parses layout bytes with the default codec.
func Decode(data []byte) (ConeMap, error) {
	return DefaultCodec.Decode(data)
}

// Read returns the raw content of a .lyt file.
func Read(path string) ([]byte, error) {
	if filepath.Ext(path) != Extension {
		return nil, &FormatError{Path: path, Reason: "expected " + Extension, Err: ErrInvalidExtension}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read layout %v: %w", path, err)
	}
	return data, nil
}

// Load reads and decodes a layout file.
func (c Codec) Load(path string) (ConeMap, error) {
	data, err := Read(path)
	if err != nil {
		return ConeMap{}, err
	}
	cones, err := c.Decode(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return ConeMap{}, err
	}
	return cones, nil
}

// Load reads a layout file with the default codec.
func Load(path string) (ConeMap, error) {
	return DefaultCodec.Load(path)
}

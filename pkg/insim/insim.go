// Package insim implements the subset of the Live for Speed InSim protocol used by the bridge:
// stream framing, decoding of the few inbound packets we care about and the outbound requests.
//
// Every packet starts with its total size in bytes followed by its type.
package insim

import (
	"errors"
	"fmt"
)

// Packet types
const (
	TypeISI  = 1
	TypeTiny = 3
	TypeSta  = 5
	TypeMso  = 11
	TypeMst  = 13
	TypeRst  = 17
	TypeAxi  = 43
	TypeObh  = 51
	TypeJrr  = 58
)

// Tiny sub types
const (
	TinyNone = 0
	TinySst  = 7
	TinyAxi  = 20
)

// Packet sizes
const (
	SizeTiny = 4
	SizeISI  = 44
	SizeSta  = 28
	SizeMst  = 68
	SizeAxi  = 40
	SizeObh  = 24
	SizeJrr  = 16

	minSizeMso = 8
)

// ErrIncomplete means the buffer does not hold a whole packet yet. Retry with more bytes.
var ErrIncomplete = errors.New("incomplete packet")

var ErrMalformed = errors.New("malformed packet")

// ProtocolError reports a packet that can never be decoded.
type ProtocolError struct {
	Type   uint8
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid insim packet type %d: %s", e.Type, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrMalformed
}

// Next splits the first packet from buf. rest shares the memory of buf.
// It returns ErrIncomplete, without consuming anything, while buf is shorter than the announced size.
func Next(buf []byte) (packet, rest []byte, err error) {
	if len(buf) == 0 {
		return nil, buf, ErrIncomplete
	}
	size := int(buf[0])
	if size < 2 {
		var t uint8
		if len(buf) > 1 {
			t = buf[1]
		}
		return nil, buf, &ProtocolError{Type: t, Reason: fmt.Sprintf("announced size %d", size)}
	}
	if len(buf) < size {
		return nil, buf, ErrIncomplete
	}
	return buf[:size], buf[size:], nil
}

func checkSize(packet []byte, expected int) error {
	if len(packet) != expected {
		return &ProtocolError{Type: packet[1], Reason: fmt.Sprintf("%d bytes, want %d", len(packet), expected)}
	}
	return nil
}

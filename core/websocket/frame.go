package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode identifies a WebSocket frame type.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// ErrMessageTooLarge is returned when a frame or reassembled message
// exceeds the connection's size bound.
var ErrMessageTooLarge = errors.New("websocket: message too large")

// frame is one wire frame. Client frames arrive masked; frames written
// by the server are unmasked, as RFC 6455 requires.
type frame struct {
	fin     bool
	opcode  Opcode
	payload []byte
}

// readFrame decodes a single frame from r, unmasking the payload when
// the mask bit is set. maxSize bounds the declared payload length.
func readFrame(r io.Reader, maxSize int64) (*frame, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	f := &frame{
		fin:    header[0]&0x80 != 0,
		opcode: Opcode(header[0] & 0x0F),
	}
	masked := header[1]&0x80 != 0

	length := int64(header[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = int64(binary.BigEndian.Uint64(ext[:]))
	}
	if length < 0 || length > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, maxSize)
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return nil, err
		}
	}

	if length > 0 {
		f.payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return nil, err
		}
		if masked {
			for i := range f.payload {
				f.payload[i] ^= mask[i%4]
			}
		}
	}
	return f, nil
}

// writeFrame encodes f onto w without masking.
func writeFrame(w io.Writer, f *frame) error {
	head := make([]byte, 0, 10)

	first := byte(f.opcode)
	if f.fin {
		first |= 0x80
	}
	head = append(head, first)

	length := len(f.payload)
	switch {
	case length < 126:
		head = append(head, byte(length))
	case length < 1<<16:
		head = append(head, 126, 0, 0)
		binary.BigEndian.PutUint16(head[2:], uint16(length))
	default:
		head = append(head, 127, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(head[2:], uint64(length))
	}

	if _, err := w.Write(head); err != nil {
		return err
	}
	if length > 0 {
		if _, err := w.Write(f.payload); err != nil {
			return err
		}
	}
	return nil
}

// Package ipc implements the length-prefixed binary framing used between
// a Worker Supervisor and its Worker subprocesses: a fixed 16-byte header
// (magic, version, message type, reserved, little-endian payload length)
// followed by a UTF-8 JSON payload of exactly that length.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/oriys/nova/internal/domain"
)

const (
	headerSize = 16
	version    = 1

	// MaxPayloadBytes bounds a single frame's declared payload length.
	// A header claiming more than this fails fast with ErrFrameTooLarge
	// without reading (and thus without allocating) the body.
	MaxPayloadBytes = 16 << 20 // 16 MiB
)

var magic = [4]byte{'E', 'D', 'G', 'E'}

// Sentinel decode errors, matching the taxonomy in §4.A.
var (
	ErrInvalidFrame  = errors.New("ipc: invalid frame")
	ErrFrameTooLarge = errors.New("ipc: frame too large")
	ErrTruncated     = errors.New("ipc: truncated frame")
)

// Frame is a decoded message: its type and raw JSON payload.
type Frame struct {
	Type    domain.MessageType
	Payload json.RawMessage
}

// Encode serializes typ and payload (marshaled to JSON) into the wire
// format: 16-byte header followed by the payload bytes.
func Encode(typ domain.MessageType, payload interface{}) ([]byte, error) {
	var body []byte
	var err error
	switch v := payload.(type) {
	case nil:
		body = []byte("null")
	case json.RawMessage:
		body = v
	case []byte:
		body = v
	default:
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ipc: marshal payload: %w", err)
		}
	}

	buf := make([]byte, headerSize+len(body))
	copy(buf[0:4], magic[:])
	buf[4] = version
	buf[5] = byte(typ)
	buf[6] = 0
	buf[7] = 0
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(body)))
	copy(buf[headerSize:], body)
	return buf, nil
}

// Decode reads exactly one frame from r: 16 header bytes, then the
// declared payload length. It tolerates short reads (uses io.ReadFull)
// and rejects a declared length above MaxPayloadBytes without attempting
// to read the body.
func Decode(r io.Reader) (*Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}

	if header[0] != magic[0] || header[1] != magic[1] || header[2] != magic[2] || header[3] != magic[3] {
		return nil, ErrInvalidFrame
	}
	if header[4] != version {
		return nil, ErrInvalidFrame
	}

	typ := domain.MessageType(header[5])
	size := binary.LittleEndian.Uint64(header[8:16])
	if size > MaxPayloadBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrTruncated
			}
			return nil, err
		}
	}

	return &Frame{Type: typ, Payload: payload}, nil
}

// Unmarshal decodes the frame's JSON payload into v.
func (f *Frame) Unmarshal(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     domain.MessageType
		payload interface{}
	}{
		{"ping", domain.MsgPing, nil},
		{"response", domain.MsgStartInstanceResponse, domain.OKResponse("started", nil)},
		{"raw", domain.MsgCreateInstance, []byte(`{"name":"a"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(tt.typ, tt.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			frame, err := Decode(bytes.NewReader(buf))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if frame.Type != tt.typ {
				t.Errorf("Type = %v, want %v", frame.Type, tt.typ)
			}
		})
	}
}

func TestDecode_InvalidMagic(t *testing.T) {
	buf, _ := Encode(domain.MsgPing, nil)
	buf[0] = 'X'
	if _, err := Decode(bytes.NewReader(buf)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("want ErrInvalidFrame, got %v", err)
	}
}

func TestDecode_WrongVersion(t *testing.T) {
	buf, _ := Encode(domain.MsgPing, nil)
	buf[4] = 9
	if _, err := Decode(bytes.NewReader(buf)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("want ErrInvalidFrame, got %v", err)
	}
}

func TestDecode_FrameTooLarge(t *testing.T) {
	header := make([]byte, headerSize)
	copy(header[0:4], magic[:])
	header[4] = version
	header[5] = byte(domain.MsgPing)
	binary.LittleEndian.PutUint64(header[8:16], 1<<34)

	if _, err := Decode(bytes.NewReader(header)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	buf, _ := Encode(domain.MsgCreateInstance, []byte(`{"a":1}`))
	if _, err := Decode(bytes.NewReader(buf[:len(buf)-3])); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestDecode_AfterTooLarge_NextFrameStillParses(t *testing.T) {
	var stream bytes.Buffer

	badHeader := make([]byte, headerSize)
	copy(badHeader[0:4], magic[:])
	badHeader[4] = version
	binary.LittleEndian.PutUint64(badHeader[8:16], 1<<34)
	stream.Write(badHeader)

	if _, err := Decode(&stream); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}

	// A fresh connection (fresh reader) with a well-formed frame parses fine;
	// single-connection servers close on this error and expect a reconnect.
	good, _ := Encode(domain.MsgPing, nil)
	frame, err := Decode(bytes.NewReader(good))
	if err != nil {
		t.Fatalf("Decode good frame: %v", err)
	}
	if frame.Type != domain.MsgPing {
		t.Errorf("Type = %v, want MsgPing", frame.Type)
	}
}

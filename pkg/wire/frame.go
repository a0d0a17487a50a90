package wire

import (
	"errors"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 4

	// MaxPayloadSize is the maximum payload size (2^16 - 1 bytes).
	MaxPayloadSize = 65535

	// MaxFrameSize is the size of the largest valid frame. Read limits must
	// not be below it.
	MaxFrameSize = FrameHeaderSize + MaxPayloadSize

	// ProtocolVersion is sent in the hello exchange.
	ProtocolVersion uint16 = 1
)

// FrameType identifies the type of frame.
type FrameType uint8

const (
	FrameHello  FrameType = 0x00
	FrameInput  FrameType = 0x01
	FrameOutput FrameType = 0x02
	FrameClose  FrameType = 0x03
	FrameError  FrameType = 0x04
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameHello:
		return "Hello"
	case FrameInput:
		return "Input"
	case FrameOutput:
		return "Output"
	case FrameClose:
		return "Close"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Valid reports whether ft is a known frame type.
func (ft FrameType) Valid() bool {
	return ft <= FrameError
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("wire: frame payload too large")
	ErrInvalidFrameType = errors.New("wire: invalid frame type")
)

// Frame is a header plus payload. The second header byte is reserved: it is
// written as zero and ignored when decoding.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// NewFrame creates a frame.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode encodes the frame to bytes including the header.
func (f *Frame) Encode() ([]byte, error) {
	length := len(f.Payload)
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderSize+length)
	buf[0] = byte(f.Type)
	buf[1] = 0
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf, nil
}

// DecodeFrame decodes one frame. Trailing bytes after the payload are an
// error, since each WebSocket message carries exactly one frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	ft := FrameType(data[0])
	if !ft.Valid() {
		return nil, ErrInvalidFrameType
	}
	length := int(data[2])<<8 | int(data[3])

	switch {
	case len(data) < FrameHeaderSize+length:
		return nil, io.ErrUnexpectedEOF
	case len(data) > FrameHeaderSize+length:
		return nil, errors.New("wire: trailing bytes after frame")
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:])

	return &Frame{Type: ft, Payload: payload}, nil
}

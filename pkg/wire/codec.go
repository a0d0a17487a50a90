package wire

import (
	"encoding/binary"
	"errors"
)

// Decoding errors.
var (
	ErrBufferTooShort = errors.New("wire: buffer too short")
	ErrVarintOverflow = errors.New("wire: varint overflow")
	ErrInvalidBool    = errors.New("wire: invalid boolean value")
)

// encoder appends primitives to a byte slice.
type encoder struct {
	buf []byte
}

func (e *encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) writeUint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) writeString(s string) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) writeBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// decoder reads primitives from a byte slice.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrBufferTooShort
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, ErrBufferTooShort
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, size := binary.Uvarint(d.buf[d.pos:])
	switch {
	case size == 0:
		return "", ErrBufferTooShort
	case size < 0:
		return "", ErrVarintOverflow
	}
	d.pos += size
	if n > uint64(len(d.buf)-d.pos) {
		return "", ErrBufferTooShort
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	SEGMENT_BITS = 0x7F
	CONTINUE_BIT = 0x80

	// MaxStringLength bounds clip ids and any other string on the wire.
	MaxStringLength = 256
)

func ReadVarint(r io.Reader) (value int32, err error) {
	var buf [1]byte
	position := 0
	for {
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		value |= int32(b&SEGMENT_BITS) << position
		if (b & CONTINUE_BIT) == 0 {
			return value, nil
		}
		position += 7
		if position >= 32 {
			return 0, ErrVarIntTooLong
		}
	}
}

func WriteVarint(w io.Writer, value int32) error {
	uvalue := uint32(value)
	for {
		temp := byte(uvalue & SEGMENT_BITS)
		uvalue >>= 7
		if uvalue != 0 {
			temp |= CONTINUE_BIT
		}
		if _, err := w.Write([]byte{temp}); err != nil {
			return err
		}
		if uvalue == 0 {
			return nil
		}
	}
}

func ReadVarLong(r io.Reader) (value int64, err error) {
	var buf [1]byte
	position := 0
	for {
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		value |= int64(b&SEGMENT_BITS) << position
		if (b & CONTINUE_BIT) == 0 {
			return value, nil
		}
		position += 7
		if position >= 64 {
			return 0, ErrVarLongTooLong
		}
	}
}

func WriteVarLong(w io.Writer, value int64) error {
	uvalue := uint64(value)
	for {
		temp := byte(uvalue & SEGMENT_BITS)
		uvalue >>= 7
		if uvalue != 0 {
			temp |= CONTINUE_BIT
		}
		if _, err := w.Write([]byte{temp}); err != nil {
			return err
		}
		if uvalue == 0 {
			return nil
		}
	}
}

// VarIntLen returns the encoded size of value.
func VarIntLen(value int32) int {
	uvalue := uint32(value)
	count := 1
	for uvalue >= CONTINUE_BIT {
		uvalue >>= 7
		count++
	}
	return count
}

func ReadString(r io.Reader) (string, error) {
	length, err := ReadVarint(r)
	if err != nil {
		return "", err
	}
	if length < 0 || length > MaxStringLength {
		return "", fmt.Errorf("%w: string length %d", ErrInvalidPacket, length)
	}
	strBytes := make([]byte, length)
	if _, err := io.ReadFull(r, strBytes); err != nil {
		return "", err
	}
	return string(strBytes), nil
}

func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("%w: string length %d", ErrInvalidPacket, len(s))
	}
	if err := WriteVarint(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func WriteByte(w io.Writer, value byte) error {
	_, err := w.Write([]byte{value})
	return err
}

func ReadBool(r io.Reader) (bool, error) {
	b, err := ReadByte(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func WriteBool(w io.Writer, value bool) error {
	var b byte
	if value {
		b = 1
	}
	return WriteByte(w, b)
}

func ReadFloat(r io.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf[:])), nil
}

func WriteFloat(w io.Writer, value float32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(value))
	_, err := w.Write(buf[:])
	return err
}

func ReadVec2(r io.Reader) (mgl32.Vec2, error) {
	var v mgl32.Vec2
	for i := range v {
		f, err := ReadFloat(r)
		if err != nil {
			return mgl32.Vec2{}, err
		}
		v[i] = f
	}
	return v, nil
}

func WriteVec2(w io.Writer, v mgl32.Vec2) error {
	for _, f := range v {
		if err := WriteFloat(w, f); err != nil {
			return err
		}
	}
	return nil
}

func ReadVec3(r io.Reader) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	for i := range v {
		f, err := ReadFloat(r)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = f
	}
	return v, nil
}

func WriteVec3(w io.Writer, v mgl32.Vec3) error {
	for _, f := range v {
		if err := WriteFloat(w, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadQuat reads w then the x, y, z vector part.
func ReadQuat(r io.Reader) (mgl32.Quat, error) {
	w, err := ReadFloat(r)
	if err != nil {
		return mgl32.Quat{}, err
	}
	v, err := ReadVec3(r)
	if err != nil {
		return mgl32.Quat{}, err
	}
	return mgl32.Quat{W: w, V: v}, nil
}

func WriteQuat(w io.Writer, q mgl32.Quat) error {
	if err := WriteFloat(w, q.W); err != nil {
		return err
	}
	return WriteVec3(w, q.V)
}

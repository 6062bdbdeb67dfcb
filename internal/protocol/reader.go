package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxStringLen bounds a single length-prefixed string.
const MaxStringLen = 16 * 1024 * 1024

// Reader decodes primitives sequentially from one reassembled reply.
// Values are little-endian and must be read in the exact order the server wrote them.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Reset points the reader at a new reply.
func (r *Reader) Reset(buf []byte) {
	r.buf = buf
	r.pos = 0
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Position returns the current offset.
func (r *Reader) Position() int {
	return r.pos
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d remain", ErrTruncated, what, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	b, err := r.take(4, "i32")
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *Reader) ReadF32() (float32, error) {
	b, err := r.take(4, "f32")
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (r *Reader) ReadF64() (float64, error) {
	b, err := r.take(8, "f64")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadBool reads one byte; any nonzero value is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.take(1, "bool")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadString reads a u64 length prefix followed by that many raw bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU64()
	if err != nil {
		return "", err
	}
	if n > uint64(r.Remaining()) {
		return "", fmt.Errorf("%w: string needs %d bytes, %d remain", ErrTruncated, n, r.Remaining())
	}
	if n > MaxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrDecode, n)
	}
	b, err := r.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadCount reads a u64 element count and rejects counts that cannot fit the
// remaining bytes given a minimum encoded size per element.
func (r *Reader) ReadCount(minElemSize int) (int, error) {
	n, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	if minElemSize > 0 && n > uint64(r.Remaining()/minElemSize) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncated, n, r.Remaining())
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: count %d out of range", ErrDecode, n)
	}
	return int(n), nil
}

func (r *Reader) readEnum(valid func(int32) bool, name string) (int32, error) {
	v, err := r.ReadI32()
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, fmt.Errorf("%w: %s value %d out of range", ErrDecode, name, v)
	}
	return v, nil
}

func (r *Reader) ReadStatus() (ServerStatus, error) {
	v, err := r.readEnum(func(v int32) bool { return ServerStatus(v).Valid() }, "server status")
	return ServerStatus(v), err
}

func (r *Reader) ReadMessageType() (MessageType, error) {
	v, err := r.readEnum(func(v int32) bool { return MessageType(v).Valid() }, "message type")
	return MessageType(v), err
}

func (r *Reader) ReadObjectKind() (ObjectKind, error) {
	v, err := r.readEnum(func(v int32) bool { return ObjectKind(v).Valid() }, "object kind")
	return ObjectKind(v), err
}

func (r *Reader) ReadShapeKind() (ShapeKind, error) {
	v, err := r.readEnum(func(v int32) bool { return ShapeKind(v).Valid() }, "shape kind")
	return ShapeKind(v), err
}

func (r *Reader) ReadVisualKind() (VisualKind, error) {
	v, err := r.readEnum(func(v int32) bool { return VisualKind(v).Valid() }, "visual kind")
	return VisualKind(v), err
}

// ReadVec3 reads three f64 values.
func (r *Reader) ReadVec3() (Vec3, error) {
	var v Vec3
	for i := range v {
		f, err := r.ReadF64()
		if err != nil {
			return Vec3{}, err
		}
		v[i] = f
	}
	return v, nil
}

// ReadQuat reads four f64 values in w, x, y, z order.
func (r *Reader) ReadQuat() (Quat, error) {
	var q Quat
	for i := range q {
		f, err := r.ReadF64()
		if err != nil {
			return Quat{}, err
		}
		q[i] = f
	}
	return q, nil
}

// ReadF64s reads n f64 values.
func (r *Reader) ReadF64s(n int) ([]float64, error) {
	if n > r.Remaining()/8 {
		return nil, fmt.Errorf("%w: %d f64 values exceed remaining %d bytes", ErrTruncated, n, r.Remaining())
	}
	out := make([]float64, n)
	for i := range out {
		f, err := r.ReadF64()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// ReadF32s reads n f32 values.
func (r *Reader) ReadF32s(n int) ([]float32, error) {
	if n > r.Remaining()/4 {
		return nil, fmt.Errorf("%w: %d f32 values exceed remaining %d bytes", ErrTruncated, n, r.Remaining())
	}
	out := make([]float32, n)
	for i := range out {
		f, err := r.ReadF32()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// ReadHeader reads the status that leads every reply and, when the server is
// rendering, the message type, which must equal want. A hibernating server
// ends the reply early and is reported through the returned status.
func (r *Reader) ReadHeader(want MessageType) (ServerStatus, error) {
	status, err := r.ReadStatus()
	if err != nil {
		return status, err
	}
	switch status {
	case StatusTerminating:
		return status, ErrServerTerminating
	case StatusHibernating:
		return status, nil
	}
	got, err := r.ReadMessageType()
	if err != nil {
		return status, err
	}
	if got != want {
		return status, MessageTypeError{Want: want, Got: got}
	}
	return status, nil
}

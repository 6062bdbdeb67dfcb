package protocol

import (
	"encoding/binary"
	"math"
)

// Writer appends primitives in the same little-endian grammar Reader consumes.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the encoded bytes; valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteI32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteF32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteF64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) WriteBool(v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	w.buf = append(w.buf, b)
}

func (w *Writer) WriteString(s string) {
	w.WriteU64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteStatus(s ServerStatus) { w.WriteI32(int32(s)) }
func (w *Writer) WriteMessageType(m MessageType) { w.WriteI32(int32(m)) }
func (w *Writer) WriteObjectKind(k ObjectKind) { w.WriteI32(int32(k)) }
func (w *Writer) WriteShapeKind(k ShapeKind) { w.WriteI32(int32(k)) }
func (w *Writer) WriteVisualKind(k VisualKind) { w.WriteI32(int32(k)) }

func (w *Writer) WriteVec3(v Vec3) {
	for _, f := range v {
		w.WriteF64(f)
	}
}

func (w *Writer) WriteQuat(q Quat) {
	for _, f := range q {
		w.WriteF64(f)
	}
}

// WriteHeader writes the status and, for a rendering server, the message type.
func (w *Writer) WriteHeader(status ServerStatus, msg MessageType) {
	w.WriteStatus(status)
	if status == StatusRendering {
		w.WriteMessageType(msg)
	}
}

// EncodeRequest returns the 4-byte wire form of a request opcode.
func EncodeRequest(r Request) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), uint32(r))
}

// DecodeRequest parses a 4-byte opcode.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) != 4 {
		return 0, ErrTruncated
	}
	req := Request(int32(binary.LittleEndian.Uint32(b)))
	if !req.Valid() {
		return req, ErrDecode
	}
	return req, nil
}

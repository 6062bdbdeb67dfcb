// Package frame splits replies into fixed-size packets and reassembles them.
//
// Every packet is exactly Limits.PacketSize bytes. Its last byte is the
// continuation footer: FooterMore means another packet of the same reply
// follows, any other value ends the reply. Footer bytes are not part of the
// logical payload. The final packet is zero-padded.
package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	PacketSize = 32768
	FooterSize = 1

	FooterMore byte = 'c'
	FooterEnd  byte = 'e'

	minPacketSize = FooterSize + 1
)

var (
	ErrPacketSize      = errors.New("frame: invalid packet size")
	ErrReplyTooLarge   = errors.New("frame: reply too large")
	ErrShortPacket     = errors.New("frame: short packet")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains packet geometry and reassembly memory use.
type Limits struct {
	PacketSize    int
	MaxReplyBytes int
}

func DefaultLimits() Limits {
	return Limits{
		PacketSize:    PacketSize,
		MaxReplyBytes: 256 * 1024 * 1024,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.PacketSize == 0 {
		l.PacketSize = def.PacketSize
	}
	if l.MaxReplyBytes == 0 {
		l.MaxReplyBytes = def.MaxReplyBytes
	}
	return l
}

func (l Limits) body() int {
	return l.PacketSize - FooterSize
}

func (l Limits) validate() error {
	if l.PacketSize < minPacketSize {
		return fmt.Errorf("%w: %d", ErrPacketSize, l.PacketSize)
	}
	return nil
}

// ReadReply reads packets from r until a final footer and appends their bodies
// to buf[:0], returning the reassembled payload.
//
// A peer that closes before the first byte of a reply yields (nil-length, io.EOF).
// A peer that closes mid-packet yields ErrShortPacket.
func ReadReply(r io.Reader, buf []byte, limits Limits) ([]byte, error) {
	if err := limits.validate(); err != nil {
		return buf[:0], err
	}
	out := buf[:0]
	packet := make([]byte, limits.PacketSize)
	for first := true; ; first = false {
		n, err := io.ReadFull(r, packet)
		if err != nil {
			if first && n == 0 && errors.Is(err, io.EOF) {
				return out, io.EOF
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return out, fmt.Errorf("%w: got %d of %d bytes", ErrShortPacket, n, limits.PacketSize)
			}
			return out, err
		}
		if len(out)+limits.body() > limits.MaxReplyBytes {
			return out, ErrReplyTooLarge
		}
		out = append(out, packet[:limits.body()]...)
		if packet[limits.body()] != FooterMore {
			return out, nil
		}
	}
}

// WriteReply splits payload into packets and writes them to w. An empty
// payload is still sent as one (padded) final packet.
func WriteReply(w io.Writer, payload []byte, limits Limits) error {
	if err := limits.validate(); err != nil {
		return err
	}
	if len(payload) > limits.MaxReplyBytes {
		return ErrPayloadTooLarge
	}
	body := limits.body()
	packet := make([]byte, limits.PacketSize)
	for off := 0; ; off += body {
		end := off + body
		last := end >= len(payload)
		if last {
			end = len(payload)
		}
		n := copy(packet, payload[off:end])
		clear(packet[n:body])
		packet[body] = FooterMore
		if last {
			packet[body] = FooterEnd
		}
		if _, err := w.Write(packet); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}

// PacketCount returns how many packets a payload of n bytes occupies.
func PacketCount(n int, limits Limits) int {
	body := limits.body()
	if n <= body {
		return 1
	}
	return (n + body - 1) / body
}

// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"passthru/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| State             | uint8          | 1            | Engine state code       |
| Level             | float32        | 4            | Meter level in [0,1]    |
| Latency           | float32        | 4            | Estimated latency (ms)  |
+-----------------------------------------------------------------------------+
*/

// PacketSize is the encoded size of one frame.
const PacketSize = 4 + 8 + 1 + 4 + 4

// Packet is the decoded wire form of a frame.
type Packet struct {
	Seq       uint32
	Timestamp int64
	State     uint8
	Level     float32
	LatencyMs float32
}

// Encode appends the wire form of f to buf.
func Encode(buf *bytes.Buffer, f transport.Frame) error {
	return binary.Write(buf, binary.BigEndian, Packet{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		State:     f.StateCode,
		Level:     f.Level,
		LatencyMs: f.LatencyMs,
	})
}

// Decode parses one packet.
func Decode(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("udp: packet is %d bytes, want %d", len(b), PacketSize)
	}
	return Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		State:     b[12],
		Level:     math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
		LatencyMs: math.Float32frombits(binary.BigEndian.Uint32(b[17:21])),
	}, nil
}

// Transport sends frames as binary packets through a UDPSender.
type Transport struct {
	sender *UDPSender

	mu  sync.Mutex
	buf bytes.Buffer // Reused across sends
}

// NewTransport dials target.
func NewTransport(target string) (*Transport, error) {
	s, err := NewUDPSender(target)
	if err != nil {
		return nil, err
	}
	t := &Transport{sender: s}
	t.buf.Grow(PacketSize)
	return t, nil
}

// Send implements transport.Transport.
func (t *Transport) Send(f transport.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Reset()
	if err := Encode(&t.buf, f); err != nil {
		return fmt.Errorf("udp: encode frame %d: %w", f.Seq, err)
	}
	return t.sender.Send(t.buf.Bytes())
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	return t.sender.Close()
}

var _ transport.Transport = (*Transport)(nil)

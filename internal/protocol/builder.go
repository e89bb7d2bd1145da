package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PacketBuilder constructs little-endian A2S payloads.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteBool writes 1 for true and 0 for false.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

// WriteUint16 writes a uint16 in little-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return b
}

// WriteUint64 writes a uint64 in little-endian order.
func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	return b
}

// WriteNullString writes s in the default encoding followed by a NUL byte.
func (b *PacketBuilder) WriteNullString(s string) *PacketBuilder {
	return b.WriteEncodedString(s, EncodingDefault)
}

// WriteEncodedString writes s encoded with enc followed by a NUL byte.
func (b *PacketBuilder) WriteEncodedString(s string, enc Encoding) *PacketBuilder {
	b.buf.Write(enc.encode(s))
	b.buf.WriteByte(0)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns a copy of the constructed bytes.
func (b *PacketBuilder) Build() []byte {
	return bytes.Clone(b.buf.Bytes())
}

// BuildWithHeader returns the payload prefixed with the single-packet header.
func (b *PacketBuilder) BuildWithHeader() []byte {
	data := b.buf.Bytes()
	result := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(result[:4], HeaderSingle)
	copy(result[4:], data)
	return result
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

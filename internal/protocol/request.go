package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var infoRequestPrefix = append(append([]byte{TypeInfoRequest}, InfoRequestString...), 0)

// EncodeInfoRequest builds an A2S_INFO request body. A zero challenge means
// no challenge is known yet and nothing is appended after the terminator.
func EncodeInfoRequest(challenge uint32) []byte {
	b := NewPacketBuilder()
	b.WriteUint8(TypeInfoRequest)
	b.WriteNullString(InfoRequestString)
	if challenge != 0 {
		b.WriteUint32(challenge)
	}
	return b.Build()
}

// DecodeInfoRequest validates an A2S_INFO request body and returns its
// challenge, or 0 when the request carries none.
func DecodeInfoRequest(data []byte) (uint32, error) {
	if !bytes.HasPrefix(data, infoRequestPrefix) {
		return 0, ErrInvalidRequest
	}

	trailer := data[len(infoRequestPrefix):]
	switch len(trailer) {
	case 0:
		return 0, nil
	case 4:
		return binary.LittleEndian.Uint32(trailer), nil
	default:
		return 0, fmt.Errorf("%w: %d trailing bytes", ErrInvalidRequest, len(trailer))
	}
}

package protocol

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding selects how a NUL-terminated string is turned into text.
type Encoding int

const (
	// EncodingDefault decodes UTF-8, replacing invalid sequences with U+FFFD.
	EncodingDefault Encoding = iota

	// EncodingRaw maps every byte to the rune of the same value, so arbitrary
	// bytes round-trip exactly. ASCII text reads the same in both modes.
	EncodingRaw
)

func (e Encoding) codec() encoding.Encoding {
	if e == EncodingRaw {
		return charmap.ISO8859_1
	}
	return unicode.UTF8
}

// String returns the name of the encoding.
func (e Encoding) String() string {
	if e == EncodingRaw {
		return "raw"
	}
	return "default"
}

func (e Encoding) decode(b []byte) string {
	out, err := e.codec().NewDecoder().Bytes(b)
	if err != nil {
		// Neither decoder reports errors; keep the bytes if one ever does.
		return string(b)
	}
	return string(out)
}

func (e Encoding) encode(s string) []byte {
	if e == EncodingDefault {
		return []byte(s)
	}
	out, err := encoding.ReplaceUnsupported(e.codec().NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

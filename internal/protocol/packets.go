// Package protocol implements the A2S_INFO wire codec used to query Source
// and GoldSource game servers. It encodes the info request, decodes both
// response formats, and never performs I/O: the transport in package network
// strips the packet header and hands the payload over. All multi-byte
// integers are little-endian and all strings are NUL-terminated.
package protocol

// Packet headers seen by the transport before the payload.
const (
	HeaderSingle uint32 = 0xFFFFFFFF // Whole response in one datagram
	HeaderSplit  uint32 = 0xFFFFFFFE // Response split across datagrams
)

// Request and response type bytes.
const (
	TypeInfoRequest   byte = 0x54 // A2S_INFO
	TypeSourceInfo    byte = 0x49 // S2A_INFO_SRC
	TypeGoldSrcInfo   byte = 0x6D // S2A_INFO_DETAILED (legacy)
	TypeChallenge     byte = 0x41 // S2C_CHALLENGE
	InfoRequestString      = "Source Engine Query"
)

// InfoRequestSize is the size of an info request without a challenge.
const InfoRequestSize = 1 + len(InfoRequestString) + 1

// Extra data flag bits in a Source info response.
const (
	EDFGameID    byte = 0x01
	EDFKeywords  byte = 0x20
	EDFSpectator byte = 0x40
	EDFSteamID   byte = 0x10
	EDFPort      byte = 0x80
)

// MaxPacketSize is the largest UDP payload a Source server sends in one datagram.
const MaxPacketSize = 1400

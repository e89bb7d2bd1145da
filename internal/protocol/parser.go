package protocol

import (
	"errors"
	"fmt"
	"time"
	"unicode"
)

// DecodeInfo decodes an A2S_INFO response payload. The payload starts at the
// response type byte; the transport has already removed the packet header.
// rtt is stored on the result as measured by the caller.
func DecodeInfo(payload []byte, rtt time.Duration) (InfoResult, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}

	r := NewReader(payload[1:])

	switch payload[0] {
	case TypeSourceInfo:
		return decodeSourceInfo(r, rtt)
	case TypeGoldSrcInfo:
		return decodeGoldSrcInfo(r, rtt)
	default:
		return nil, fmt.Errorf("%w: unknown response type 0x%02X", ErrMalformedResponse, payload[0])
	}
}

// decodeSourceInfo reads an S2A_INFO_SRC body.
func decodeSourceInfo(r *Reader, rtt time.Duration) (*SourceInfo, error) {
	info := &SourceInfo{}
	var err error

	if info.Protocol, err = r.ReadUint8(); err != nil {
		return nil, malformed("protocol", err)
	}
	if info.Name, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("server name", err)
	}
	if info.Map, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("map", err)
	}
	if info.Folder, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("folder", err)
	}
	if info.Game, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("game", err)
	}
	if info.AppID, err = r.ReadUint16(); err != nil {
		return nil, malformed("app id", err)
	}
	if info.Players, err = r.ReadUint8(); err != nil {
		return nil, malformed("player count", err)
	}
	if info.MaxPlayers, err = r.ReadUint8(); err != nil {
		return nil, malformed("max players", err)
	}
	if info.Bots, err = r.ReadUint8(); err != nil {
		return nil, malformed("bot count", err)
	}

	serverType, err := r.ReadChar()
	if err != nil {
		return nil, malformed("server type", err)
	}
	info.ServerType = toLower(serverType)

	platform, err := r.ReadChar()
	if err != nil {
		return nil, malformed("platform", err)
	}
	info.Platform = toLower(platform)
	if info.Platform == 'o' {
		// Mac servers before Left 4 Dead used 'o'.
		info.Platform = 'm'
	}

	if info.Password, err = r.ReadBool(); err != nil {
		return nil, malformed("password flag", err)
	}
	if info.VAC, err = r.ReadBool(); err != nil {
		return nil, malformed("vac flag", err)
	}
	if info.Version, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("version", err)
	}

	info.RoundTripTime = rtt

	edf, err := r.ReadUint8()
	if errors.Is(err, ErrBufferExhausted) {
		// Plenty of servers stop right after the version string.
		return info, nil
	}
	info.ExtraDataFlags = edf

	if edf&EDFPort != 0 {
		port, err := r.ReadUint16()
		if err != nil {
			return nil, malformed("port", err)
		}
		info.Port = &port
	}

	if edf&EDFSteamID != 0 {
		steamID, err := r.ReadUint64()
		if err != nil {
			return nil, malformed("steam id", err)
		}
		info.SteamID = &steamID
	}

	if edf&EDFSpectator != 0 {
		port, err := r.ReadUint16()
		if err != nil {
			return nil, malformed("spectator port", err)
		}
		name, err := r.ReadCString(EncodingDefault)
		if err != nil {
			return nil, malformed("spectator name", err)
		}
		info.Spectator = &Spectator{Port: port, Name: name}
	}

	if edf&EDFKeywords != 0 {
		keywords, err := r.ReadCString(EncodingDefault)
		if err != nil {
			return nil, malformed("keywords", err)
		}
		info.Keywords = &keywords
	}

	if edf&EDFGameID != 0 {
		gameID, err := r.ReadUint64()
		if err != nil {
			return nil, malformed("game id", err)
		}
		info.GameID = &gameID
	}

	return info, nil
}

// decodeGoldSrcInfo reads a legacy S2A_INFO_DETAILED body.
func decodeGoldSrcInfo(r *Reader, rtt time.Duration) (*GoldSrcInfo, error) {
	info := &GoldSrcInfo{}
	var err error

	if info.Address, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("address", err)
	}
	if info.Name, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("server name", err)
	}
	if info.Map, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("map", err)
	}
	// Some mods put non-UTF-8 bytes in the folder name; keep them as-is.
	if info.Folder, err = r.ReadCString(EncodingRaw); err != nil {
		return nil, malformed("folder", err)
	}
	if info.Game, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, malformed("game", err)
	}
	if info.Players, err = r.ReadUint8(); err != nil {
		return nil, malformed("player count", err)
	}
	if info.MaxPlayers, err = r.ReadUint8(); err != nil {
		return nil, malformed("max players", err)
	}
	if info.Protocol, err = r.ReadUint8(); err != nil {
		return nil, malformed("protocol", err)
	}

	serverType, err := r.ReadChar()
	if err != nil {
		return nil, malformed("server type", err)
	}
	info.ServerType = toUpper(serverType)

	platform, err := r.ReadChar()
	if err != nil {
		return nil, malformed("platform", err)
	}
	info.Platform = toUpper(platform)

	if info.Password, err = r.ReadBool(); err != nil {
		return nil, malformed("password flag", err)
	}
	if info.IsMod, err = r.ReadBool(); err != nil {
		return nil, malformed("mod flag", err)
	}

	if info.IsMod && r.Remaining() > 2 {
		mod, err := decodeModInfo(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedModBlock, err)
		}
		info.Mod = mod
	}

	if info.VAC, err = r.ReadBool(); err != nil {
		return nil, malformed("vac flag", err)
	}
	if info.Bots, err = r.ReadUint8(); err != nil {
		return nil, malformed("bot count", err)
	}

	info.RoundTripTime = rtt
	return info, nil
}

// decodeModInfo reads the GoldSource mod block.
func decodeModInfo(r *Reader) (*ModInfo, error) {
	mod := &ModInfo{}
	var err error

	if mod.Website, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, fmt.Errorf("reading mod website: %w", err)
	}
	if mod.Download, err = r.ReadCString(EncodingDefault); err != nil {
		return nil, fmt.Errorf("reading mod download: %w", err)
	}
	// One reserved byte sits between the download URL and the version.
	if err = r.Skip(1); err != nil {
		return nil, fmt.Errorf("skipping reserved byte: %w", err)
	}
	if mod.Version, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("reading mod version: %w", err)
	}
	if mod.Size, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("reading mod size: %w", err)
	}
	if mod.MultiplayerOnly, err = r.ReadBool(); err != nil {
		return nil, fmt.Errorf("reading multiplayer only flag: %w", err)
	}
	if mod.CustomDLL, err = r.ReadBool(); err != nil {
		return nil, fmt.Errorf("reading custom dll flag: %w", err)
	}

	return mod, nil
}

func toLower(c byte) byte {
	if c >= 0x80 {
		return c
	}
	return byte(unicode.ToLower(rune(c)))
}

func toUpper(c byte) byte {
	if c >= 0x80 {
		return c
	}
	return byte(unicode.ToUpper(rune(c)))
}

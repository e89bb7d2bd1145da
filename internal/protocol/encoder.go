package protocol

// EncodeSourceInfo builds an S2A_INFO_SRC payload, type byte included.
// The extra data flags are derived from which optional fields are set;
// info.ExtraDataFlags is ignored. With no optional field set the EDF byte
// is still written as 0.
func EncodeSourceInfo(info *SourceInfo) []byte {
	b := NewPacketBuilder()
	b.WriteUint8(TypeSourceInfo).
		WriteUint8(info.Protocol).
		WriteNullString(info.Name).
		WriteNullString(info.Map).
		WriteNullString(info.Folder).
		WriteNullString(info.Game).
		WriteUint16(info.AppID).
		WriteUint8(info.Players).
		WriteUint8(info.MaxPlayers).
		WriteUint8(info.Bots).
		WriteUint8(info.ServerType).
		WriteUint8(info.Platform).
		WriteBool(info.Password).
		WriteBool(info.VAC).
		WriteNullString(info.Version)

	edf := SourceFlags(info)
	b.WriteUint8(edf)

	if info.Port != nil {
		b.WriteUint16(*info.Port)
	}
	if info.SteamID != nil {
		b.WriteUint64(*info.SteamID)
	}
	if info.Spectator != nil {
		b.WriteUint16(info.Spectator.Port).WriteNullString(info.Spectator.Name)
	}
	if info.Keywords != nil {
		b.WriteNullString(*info.Keywords)
	}
	if info.GameID != nil {
		b.WriteUint64(*info.GameID)
	}

	return b.Build()
}

// SourceFlags returns the extra data flags matching the optional fields set on info.
func SourceFlags(info *SourceInfo) byte {
	var edf byte
	if info.Port != nil {
		edf |= EDFPort
	}
	if info.SteamID != nil {
		edf |= EDFSteamID
	}
	if info.Spectator != nil {
		edf |= EDFSpectator
	}
	if info.Keywords != nil {
		edf |= EDFKeywords
	}
	if info.GameID != nil {
		edf |= EDFGameID
	}
	return edf
}

// EncodeGoldSrcInfo builds a legacy S2A_INFO_DETAILED payload, type byte included.
// The mod block is written only when IsMod is set and Mod is non-nil.
func EncodeGoldSrcInfo(info *GoldSrcInfo) []byte {
	b := NewPacketBuilder()
	b.WriteUint8(TypeGoldSrcInfo).
		WriteNullString(info.Address).
		WriteNullString(info.Name).
		WriteNullString(info.Map).
		WriteEncodedString(info.Folder, EncodingRaw).
		WriteNullString(info.Game).
		WriteUint8(info.Players).
		WriteUint8(info.MaxPlayers).
		WriteUint8(info.Protocol).
		WriteUint8(info.ServerType).
		WriteUint8(info.Platform).
		WriteBool(info.Password).
		WriteBool(info.IsMod)

	if info.IsMod && info.Mod != nil {
		b.WriteNullString(info.Mod.Website).
			WriteNullString(info.Mod.Download).
			WriteUint8(0).
			WriteUint32(info.Mod.Version).
			WriteUint32(info.Mod.Size).
			WriteBool(info.Mod.MultiplayerOnly).
			WriteBool(info.Mod.CustomDLL)
	}

	b.WriteBool(info.VAC).WriteUint8(info.Bots)
	return b.Build()
}

// EncodeInfo encodes either result variant.
func EncodeInfo(info InfoResult) []byte {
	switch v := info.(type) {
	case *SourceInfo:
		return EncodeSourceInfo(v)
	case *GoldSrcInfo:
		return EncodeGoldSrcInfo(v)
	default:
		return nil
	}
}

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourcePrefix writes the mandatory part of a Source response up to and
// including the version string.
func sourcePrefix(platform byte) *PacketBuilder {
	b := NewPacketBuilder()
	b.WriteUint8(TypeSourceInfo).
		WriteUint8(17).
		WriteNullString("My Server").
		WriteNullString("de_dust2").
		WriteNullString("csgo").
		WriteNullString("Counter-Strike: Global Offensive").
		WriteUint16(730).
		WriteUint8(12).
		WriteUint8(24).
		WriteUint8(2).
		WriteUint8('D').
		WriteUint8(platform).
		WriteBool(false).
		WriteBool(true).
		WriteNullString("1.38.7.9")
	return b
}

func ptr[T any](v T) *T { return &v }

func TestDecodeInfo_SourceRoundTrip(t *testing.T) {
	tt := map[string]*SourceInfo{
		"no optional fields": {},
		"port only":          {Port: ptr(uint16(27015))},
		"all fields": {
			Port:      ptr(uint16(27015)),
			SteamID:   ptr(uint64(90071996842377216)),
			Spectator: &Spectator{Port: 27020, Name: "SourceTV"},
			Keywords:  ptr("empty,secure"),
			GameID:    ptr(uint64(730)),
		},
		"spectator and game id": {
			Spectator: &Spectator{Port: 27020, Name: "relay"},
			GameID:    ptr(uint64(4000)),
		},
	}

	for name, optional := range tt {
		t.Run(name, func(t *testing.T) {
			want := &SourceInfo{
				Protocol:   17,
				Name:       "Ünïcode Server",
				Map:        "cp_badlands",
				Folder:     "tf",
				Game:       "Team Fortress",
				AppID:      440,
				Players:    5,
				MaxPlayers: 24,
				Bots:       1,
				ServerType: 'd',
				Platform:   'l',
				Password:   true,
				VAC:        true,
				Version:    "8622567",
				Port:       optional.Port,
				SteamID:    optional.SteamID,
				Spectator:  optional.Spectator,
				Keywords:   optional.Keywords,
				GameID:     optional.GameID,
			}
			want.ExtraDataFlags = SourceFlags(want)
			want.RoundTripTime = 42 * time.Millisecond

			result, err := DecodeInfo(EncodeSourceInfo(want), 42*time.Millisecond)
			require.NoError(t, err)

			got, ok := result.(*SourceInfo)
			require.True(t, ok)
			assert.Equal(t, want, got)
			assert.Equal(t, EngineSource, got.Engine())
		})
	}
}

func TestDecodeInfo_SourceWithoutEDF(t *testing.T) {
	result, err := DecodeInfo(sourcePrefix('l').Build(), time.Second)
	require.NoError(t, err)

	info := result.(*SourceInfo)
	assert.Equal(t, uint8(0), info.ExtraDataFlags)
	assert.Nil(t, info.Port)
	assert.Nil(t, info.SteamID)
	assert.Nil(t, info.Spectator)
	assert.Nil(t, info.Keywords)
	assert.Nil(t, info.GameID)
	assert.Equal(t, "1.38.7.9", info.Version)
	assert.Equal(t, byte('d'), info.ServerType)
	assert.Equal(t, time.Second, info.RoundTripTime)
}

func TestDecodeInfo_SourceFlaggedPortTruncated(t *testing.T) {
	b := sourcePrefix('l').WriteUint8(EDFPort).WriteUint8(0x87)

	_, err := DecodeInfo(b.Build(), 0)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, ErrBufferExhausted)
}

func TestDecodeInfo_SourceFlaggedKeywordsUnterminated(t *testing.T) {
	b := sourcePrefix('w').WriteUint8(EDFKeywords).WriteBytes([]byte("no,terminator"))

	_, err := DecodeInfo(b.Build(), 0)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeInfo_SourcePlatform(t *testing.T) {
	tt := map[byte]byte{
		'O': 'm',
		'o': 'm',
		'M': 'm',
		'W': 'w',
		'L': 'l',
	}

	for in, want := range tt {
		result, err := DecodeInfo(sourcePrefix(in).Build(), 0)
		require.NoError(t, err)
		assert.Equal(t, want, result.(*SourceInfo).Platform, "platform %q", in)
	}
}

func TestDecodeInfo_SourceTruncatedPrefix(t *testing.T) {
	full := sourcePrefix('l').Build()

	// Every cut inside the mandatory prefix fails; the full prefix succeeds.
	for n := 1; n < len(full); n++ {
		_, err := DecodeInfo(full[:n], 0)
		assert.ErrorIs(t, err, ErrMalformedResponse, "cut at %d", n)
	}
}

// goldSrcPrefix writes a GoldSource response up to and including the mod flag.
func goldSrcPrefix(folder []byte, isMod bool) *PacketBuilder {
	b := NewPacketBuilder()
	b.WriteUint8(TypeGoldSrcInfo).
		WriteNullString("127.0.0.1:27015").
		WriteNullString("Half-Life Server").
		WriteNullString("crossfire").
		WriteBytes(folder).WriteUint8(0).
		WriteNullString("Half-Life").
		WriteUint8(3).
		WriteUint8(16).
		WriteUint8(47).
		WriteUint8('d').
		WriteUint8('w').
		WriteBool(false).
		WriteBool(isMod)
	return b
}

func TestDecodeInfo_GoldSrcModMissing(t *testing.T) {
	b := goldSrcPrefix([]byte("valve"), true).WriteBool(true).WriteUint8(4)

	result, err := DecodeInfo(b.Build(), 0)
	require.NoError(t, err)

	info := result.(*GoldSrcInfo)
	assert.True(t, info.IsMod)
	assert.Nil(t, info.Mod)

	mod := info.ModOrZero()
	assert.Equal(t, "", mod.Website)
	assert.Equal(t, uint32(0), mod.Version)
	assert.False(t, mod.MultiplayerOnly)

	assert.True(t, info.VAC)
	assert.Equal(t, uint8(4), info.Bots)
	assert.Equal(t, byte('D'), info.ServerType)
	assert.Equal(t, byte('W'), info.Platform)
}

func TestDecodeInfo_GoldSrcModBlock(t *testing.T) {
	b := goldSrcPrefix([]byte("cstrike"), true).
		WriteNullString("http://www.counter-strike.net").
		WriteNullString("http://dl.example.com/cs.zip").
		WriteUint8(0xAA).
		WriteUint32(1).
		WriteUint32(184000000).
		WriteBool(true).
		WriteBool(true).
		WriteBool(true).
		WriteUint8(0)

	result, err := DecodeInfo(b.Build(), 0)
	require.NoError(t, err)

	info := result.(*GoldSrcInfo)
	require.NotNil(t, info.Mod)
	assert.Equal(t, ModInfo{
		Website:         "http://www.counter-strike.net",
		Download:        "http://dl.example.com/cs.zip",
		Version:         1,
		Size:            184000000,
		MultiplayerOnly: true,
		CustomDLL:       true,
	}, *info.Mod)
	assert.True(t, info.VAC)
	assert.Equal(t, uint8(0), info.Bots)
}

func TestDecodeInfo_GoldSrcModTruncated(t *testing.T) {
	b := goldSrcPrefix([]byte("cstrike"), true).
		WriteNullString("http://www.counter-strike.net").
		WriteNullString("http://dl.example.com/cs.zip").
		WriteUint8(0).
		WriteUint8(0x01)

	_, err := DecodeInfo(b.Build(), 0)
	assert.ErrorIs(t, err, ErrUnsupportedModBlock)
	assert.ErrorIs(t, err, ErrBufferExhausted)
}

func TestDecodeInfo_GoldSrcNotMod(t *testing.T) {
	b := goldSrcPrefix([]byte("valve"), false).WriteBool(false).WriteUint8(0)

	result, err := DecodeInfo(b.Build(), 0)
	require.NoError(t, err)
	assert.Nil(t, result.(*GoldSrcInfo).Mod)
}

func TestDecodeInfo_GoldSrcRawFolder(t *testing.T) {
	b := goldSrcPrefix([]byte{'m', 0xFF, 'd'}, false).WriteBool(false).WriteUint8(0)

	result, err := DecodeInfo(b.Build(), 0)
	require.NoError(t, err)

	info := result.(*GoldSrcInfo)
	assert.Equal(t, "mÿd", info.Folder)
	assert.Equal(t, []byte{'m', 0xFF, 'd'}, EncodingRaw.encode(info.Folder))
}

func TestDecodeInfo_GoldSrcDefaultGameReplacesInvalid(t *testing.T) {
	b := NewPacketBuilder()
	b.WriteUint8(TypeGoldSrcInfo).
		WriteNullString("127.0.0.1:27015").
		WriteNullString("name").
		WriteNullString("map").
		WriteNullString("valve").
		WriteBytes([]byte{'g', 0xFF}).WriteUint8(0).
		WriteUint8(0).WriteUint8(0).WriteUint8(47).
		WriteUint8('l').WriteUint8('l').
		WriteBool(false).WriteBool(false).
		WriteBool(false).WriteUint8(0)

	result, err := DecodeInfo(b.Build(), 0)
	require.NoError(t, err)
	assert.Equal(t, "g�", result.(*GoldSrcInfo).Game)
}

func TestDecodeInfo_GoldSrcRoundTrip(t *testing.T) {
	want := &GoldSrcInfo{
		Address:    "10.0.0.1:27015",
		Name:       "Legacy",
		Map:        "de_aztec",
		Folder:     "czÿ",
		Game:       "Condition Zero",
		Players:    1,
		MaxPlayers: 32,
		Protocol:   47,
		ServerType: 'D',
		Platform:   'L',
		IsMod:      true,
		Mod:        &ModInfo{Website: "w", Download: "d", Version: 2, Size: 3},
		VAC:        true,
		Bots:       5,
	}

	result, err := DecodeInfo(EncodeGoldSrcInfo(want), 0)
	require.NoError(t, err)
	assert.Equal(t, want, result)
}

func TestDecodeInfo_UnknownType(t *testing.T) {
	for _, payload := range [][]byte{{0x99, 0x00, 0x01}, {}, {TypeChallenge, 1, 2, 3, 4}} {
		result, err := DecodeInfo(payload, 0)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	}
}

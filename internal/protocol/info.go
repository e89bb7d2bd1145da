package protocol

import "time"

// Engine names the response format a result was decoded from.
type Engine string

const (
	EngineSource  Engine = "source"
	EngineGoldSrc Engine = "goldsrc"
)

// InfoResult is either *SourceInfo or *GoldSrcInfo.
type InfoResult interface {
	Engine() Engine
	RTT() time.Duration
	infoResult()
}

// Spectator describes a SourceTV relay advertised by a Source server.
type Spectator struct {
	Port uint16 `json:"port"`
	Name string `json:"name"`
}

// SourceInfo is a decoded S2A_INFO_SRC response.
// Optional fields are nil unless their extra data flag bit was set.
type SourceInfo struct {
	Protocol   uint8  `json:"protocol"`
	Name       string `json:"name"`
	Map        string `json:"map"`
	Folder     string `json:"folder"`
	Game       string `json:"game"`
	AppID      uint16 `json:"app_id"`
	Players    uint8  `json:"players"`
	MaxPlayers uint8  `json:"max_players"`
	Bots       uint8  `json:"bots"`

	// ServerType is 'd' (dedicated), 'l' (listen) or 'p' (SourceTV relay).
	ServerType byte `json:"server_type"`

	// Platform is 'l' (linux), 'w' (windows) or 'm' (mac).
	Platform byte `json:"platform"`

	Password bool   `json:"password"`
	VAC      bool   `json:"vac"`
	Version  string `json:"version"`

	ExtraDataFlags uint8      `json:"extra_data_flags"`
	Port           *uint16    `json:"port,omitempty"`
	SteamID        *uint64    `json:"steam_id,omitempty"`
	Spectator      *Spectator `json:"spectator,omitempty"`
	Keywords       *string    `json:"keywords,omitempty"`
	GameID         *uint64    `json:"game_id,omitempty"`

	RoundTripTime time.Duration `json:"rtt"`
}

func (*SourceInfo) Engine() Engine       { return EngineSource }
func (i *SourceInfo) RTT() time.Duration { return i.RoundTripTime }
func (*SourceInfo) infoResult()          {}

// ModInfo is the optional mod block of a GoldSource response.
type ModInfo struct {
	Website         string `json:"website"`
	Download        string `json:"download"`
	Version         uint32 `json:"version"`
	Size            uint32 `json:"size"`
	MultiplayerOnly bool   `json:"multiplayer_only"`
	CustomDLL       bool   `json:"custom_dll"`
}

// GoldSrcInfo is a decoded legacy S2A_INFO_DETAILED response.
type GoldSrcInfo struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Map        string `json:"map"`
	Folder     string `json:"folder"`
	Game       string `json:"game"`
	Players    uint8  `json:"players"`
	MaxPlayers uint8  `json:"max_players"`
	Protocol   uint8  `json:"protocol"`

	// ServerType is 'D' (dedicated), 'L' (listen) or 'P' (HLTV).
	ServerType byte `json:"server_type"`

	// Platform is 'L' (linux) or 'W' (windows).
	Platform byte `json:"platform"`

	Password bool `json:"password"`
	IsMod    bool `json:"is_mod"`

	// Mod is nil when the server sent no mod block, even if IsMod is set.
	Mod *ModInfo `json:"mod,omitempty"`

	VAC  bool  `json:"vac"`
	Bots uint8 `json:"bots"`

	RoundTripTime time.Duration `json:"rtt"`
}

func (*GoldSrcInfo) Engine() Engine       { return EngineGoldSrc }
func (i *GoldSrcInfo) RTT() time.Duration { return i.RoundTripTime }
func (*GoldSrcInfo) infoResult()          {}

// ModOrZero returns the mod block, or a zero ModInfo when none was sent.
func (i *GoldSrcInfo) ModOrZero() ModInfo {
	if i.Mod == nil {
		return ModInfo{}
	}
	return *i.Mod
}

package protocol

import "time"

// Summary is a flat view of either result variant, for storage and display.
type Summary struct {
	Engine     Engine        `json:"engine"`
	Name       string        `json:"name"`
	Map        string        `json:"map"`
	Folder     string        `json:"folder"`
	Game       string        `json:"game"`
	Version    string        `json:"version,omitempty"`
	Players    int           `json:"players"`
	MaxPlayers int           `json:"max_players"`
	Bots       int           `json:"bots"`
	ServerType string        `json:"server_type"`
	Platform   string        `json:"platform"`
	Password   bool          `json:"password"`
	VAC        bool          `json:"vac"`
	Keywords   string        `json:"keywords,omitempty"`
	RTT        time.Duration `json:"rtt"`
}

// Summarize flattens an InfoResult. It returns a zero Summary for nil.
func Summarize(result InfoResult) Summary {
	switch info := result.(type) {
	case *SourceInfo:
		s := Summary{
			Engine:     EngineSource,
			Name:       info.Name,
			Map:        info.Map,
			Folder:     info.Folder,
			Game:       info.Game,
			Version:    info.Version,
			Players:    int(info.Players),
			MaxPlayers: int(info.MaxPlayers),
			Bots:       int(info.Bots),
			ServerType: string(rune(info.ServerType)),
			Platform:   string(rune(info.Platform)),
			Password:   info.Password,
			VAC:        info.VAC,
			RTT:        info.RoundTripTime,
		}
		if info.Keywords != nil {
			s.Keywords = *info.Keywords
		}
		return s

	case *GoldSrcInfo:
		return Summary{
			Engine:     EngineGoldSrc,
			Name:       info.Name,
			Map:        info.Map,
			Folder:     info.Folder,
			Game:       info.Game,
			Players:    int(info.Players),
			MaxPlayers: int(info.MaxPlayers),
			Bots:       int(info.Bots),
			ServerType: string(rune(info.ServerType)),
			Platform:   string(rune(info.Platform)),
			Password:   info.Password,
			VAC:        info.VAC,
			RTT:        info.RoundTripTime,
		}

	default:
		return Summary{}
	}
}

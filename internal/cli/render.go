package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/monitor"
	"github.com/energizer-project/sourcequery/internal/protocol"
)

// QueryRow is the outcome of one ad-hoc query.
type QueryRow struct {
	Address string
	Info    protocol.InfoResult
	Err     error
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

// RenderQueryResults prints one line per queried address.
func RenderQueryResults(w io.Writer, rows []QueryRow) {
	tw := newTable(w, []string{"Address", "Engine", "Name", "Map", "Players", "Bots", "VAC", "RTT", "Error"})

	for _, r := range rows {
		if r.Err != nil {
			tw.Append([]string{r.Address, "-", "-", "-", "-", "-", "-", "-", r.Err.Error()})
			continue
		}
		s := protocol.Summarize(r.Info)
		tw.Append([]string{
			r.Address,
			string(s.Engine),
			s.Name,
			s.Map,
			fmt.Sprintf("%d/%d", s.Players, s.MaxPlayers),
			strconv.Itoa(s.Bots),
			yesNo(s.VAC),
			formatRTT(s.RTT),
			"",
		})
	}

	tw.Render()
}

// RenderInfoDetail prints every field of a single result.
func RenderInfoDetail(w io.Writer, address string, info protocol.InfoResult) {
	tw := newTable(w, []string{"Field", "Value"})
	tw.Append([]string{"Address", address})
	tw.Append([]string{"Engine", string(info.Engine())})
	tw.Append([]string{"RTT", formatRTT(info.RTT())})

	switch i := info.(type) {
	case *protocol.SourceInfo:
		tw.AppendBulk([][]string{
			{"Name", i.Name},
			{"Map", i.Map},
			{"Folder", i.Folder},
			{"Game", i.Game},
			{"App ID", strconv.Itoa(int(i.AppID))},
			{"Players", fmt.Sprintf("%d/%d", i.Players, i.MaxPlayers)},
			{"Bots", strconv.Itoa(int(i.Bots))},
			{"Server Type", string(rune(i.ServerType))},
			{"Platform", string(rune(i.Platform))},
			{"Password", yesNo(i.Password)},
			{"VAC", yesNo(i.VAC)},
			{"Version", i.Version},
		})
		if i.Port != nil {
			tw.Append([]string{"Game Port", strconv.Itoa(int(*i.Port))})
		}
		if i.SteamID != nil {
			tw.Append([]string{"Steam ID", strconv.FormatUint(*i.SteamID, 10)})
		}
		if i.Spectator != nil {
			tw.Append([]string{"SourceTV", fmt.Sprintf("%s (port %d)", i.Spectator.Name, i.Spectator.Port)})
		}
		if i.Keywords != nil {
			tw.Append([]string{"Keywords", *i.Keywords})
		}
		if i.GameID != nil {
			tw.Append([]string{"Game ID", strconv.FormatUint(*i.GameID, 10)})
		}

	case *protocol.GoldSrcInfo:
		tw.AppendBulk([][]string{
			{"Server Address", i.Address},
			{"Name", i.Name},
			{"Map", i.Map},
			{"Folder", i.Folder},
			{"Game", i.Game},
			{"Players", fmt.Sprintf("%d/%d", i.Players, i.MaxPlayers)},
			{"Bots", strconv.Itoa(int(i.Bots))},
			{"Protocol", strconv.Itoa(int(i.Protocol))},
			{"Server Type", string(rune(i.ServerType))},
			{"Platform", string(rune(i.Platform))},
			{"Password", yesNo(i.Password)},
			{"VAC", yesNo(i.VAC)},
			{"Mod", yesNo(i.IsMod)},
		})
		if i.Mod != nil {
			tw.AppendBulk([][]string{
				{"Mod Website", i.Mod.Website},
				{"Mod Download", i.Mod.Download},
				{"Mod Version", strconv.FormatUint(uint64(i.Mod.Version), 10)},
				{"Mod Size", strconv.FormatUint(uint64(i.Mod.Size), 10)},
			})
		}
	}

	tw.Render()
}

// RenderStates prints the monitor's view of every target.
func RenderStates(w io.Writer, states []monitor.TargetState) {
	tw := newTable(w, []string{"Name", "Address", "Status", "Map", "Players", "RTT", "Last Seen", "Failures"})

	for _, s := range states {
		mapName, players := "-", "-"
		if s.LastInfo != nil {
			mapName = s.LastInfo.Map
			players = fmt.Sprintf("%d/%d", s.LastInfo.Players, s.LastInfo.MaxPlayers)
		}
		lastSeen := "never"
		if !s.LastSeen.IsZero() {
			lastSeen = s.LastSeen.Format(time.TimeOnly)
		}
		tw.Append([]string{
			s.Target.Name,
			s.Target.Address,
			s.Status.String(),
			mapName,
			players,
			formatRTT(s.RTT),
			lastSeen,
			strconv.Itoa(s.ConsecutiveFailures),
		})
	}

	tw.Render()
}

// RenderHistory prints recorded snapshots.
func RenderHistory(w io.Writer, snaps []db.Snapshot) {
	tw := newTable(w, []string{"Time", "Online", "Map", "Players", "RTT (ms)", "Error"})

	for _, s := range snaps {
		tw.Append([]string{
			s.CreatedAt.Format(time.DateTime),
			yesNo(s.Online),
			s.Map,
			fmt.Sprintf("%d/%d", s.Players, s.MaxPlayers),
			strconv.FormatFloat(s.RTTMillis, 'f', 1, 64),
			s.Error,
		})
	}

	tw.Render()
}

func formatRTT(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Microsecond).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

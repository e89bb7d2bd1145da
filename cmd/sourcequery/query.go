package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/sourcequery/internal/cli"
	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/network"
	"github.com/energizer-project/sourcequery/internal/protocol"
	"github.com/energizer-project/sourcequery/internal/util"
)

var (
	queryTimeout = network.DefaultTimeout
	queryRetries = network.DefaultRetries
	queryWorkers = 8
	queryJSON    = false

	queryCmd = &cobra.Command{
		Use:   "query <address>...",
		Short: "Query one or more servers and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
)

func init() {
	queryCmd.Flags().DurationVarP(&queryTimeout, "timeout", "t", queryTimeout, "wait per reply datagram")
	queryCmd.Flags().IntVarP(&queryRetries, "retries", "r", queryRetries, "challenge replies answered before giving up")
	queryCmd.Flags().IntVarP(&queryWorkers, "workers", "w", queryWorkers, "queries run concurrently")
	queryCmd.Flags().BoolVar(&queryJSON, "json", queryJSON, "print JSON instead of a table")
}

type jsonResult struct {
	Address string              `json:"address"`
	Engine  protocol.Engine     `json:"engine,omitempty"`
	RTTMS   float64             `json:"rtt_ms,omitempty"`
	Info    protocol.InfoResult `json:"info,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	level := "warn"
	if logLevel != "" {
		level = logLevel
	}
	if err := util.InitLogger(util.LogConfig{Level: level, Console: true}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := network.NewClient(queryTimeout, queryRetries)
	rows := make([]cli.QueryRow, len(args))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(queryWorkers, 1))
	for i, addr := range args {
		i, addr := i, addr
		rows[i].Address = addr
		if err := config.ValidateAddress(addr); err != nil {
			rows[i].Err = err
			continue
		}
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, queryDeadline(client.Timeout, client.Retries))
			defer cancel()
			info, err := client.Query(qctx, addr)
			rows[i].Info, rows[i].Err = info, err
			return nil
		})
	}
	g.Wait()

	out := cmd.OutOrStdout()
	if queryJSON {
		results := make([]jsonResult, 0, len(rows))
		for _, r := range rows {
			res := jsonResult{Address: r.Address}
			if r.Err != nil {
				res.Error = r.Err.Error()
			} else {
				res.Engine = r.Info.Engine()
				res.RTTMS = float64(r.Info.RTT().Microseconds()) / 1000
				res.Info = r.Info
			}
			results = append(results, res)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(rows) == 1 && rows[0].Err == nil {
		cli.RenderInfoDetail(out, rows[0].Address, rows[0].Info)
		return nil
	}
	cli.RenderQueryResults(out, rows)

	for _, r := range rows {
		if r.Err != nil {
			return fmt.Errorf("%d of %d queries failed", countFailed(rows), len(rows))
		}
	}
	return nil
}

func countFailed(rows []cli.QueryRow) int {
	n := 0
	for _, r := range rows {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// queryDeadline bounds one address: every challenge round plus the final reply.
func queryDeadline(timeout time.Duration, retries int) time.Duration {
	return timeout * time.Duration(retries+2)
}

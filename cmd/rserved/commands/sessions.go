package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/rserved/internal/cli/output"
	"github.com/marmos91/rserved/internal/ledger"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions from the audit ledger",
	Long: `List every session recorded in rserved's badger-backed audit ledger,
for post-mortem inspection of past connections.

This opens the ledger file directly and does not require a running server,
so it must not be run concurrently against the same ledger path as a live
rserved process.

Examples:
  rserved sessions
  rserved sessions --config /etc/rserved/config.yaml`,
	RunE: runSessions,
}

type sessionTable struct {
	records []ledger.SessionRecord
}

func (t sessionTable) Headers() []string {
	return []string{"UCIX", "Peer", "Accepted", "Commands", "Status", "Last Stat"}
}

func (t sessionTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.records))
	for _, rec := range t.records {
		status := "open"
		if rec.Closed {
			status = "closed"
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.UCIX, 10),
			rec.PeerAddr,
			rec.AcceptedAt.Format(time.RFC3339),
			strconv.FormatInt(rec.CommandLen, 10),
			status,
			strconv.FormatInt(int64(rec.LastStat), 10),
		})
	}
	return rows
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("failed to open session ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	records, err := l.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	output.PrintTable(os.Stdout, sessionTable{records: records})
	return nil
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Raydrick/docship/internal/history"
)

// HistoryCmd lists recent pipeline runs from the daemon's history store.
type HistoryCmd struct {
	DB    string `help:"History database path" default:"docship-history.db"`
	Limit int    `short:"n" help:"Number of runs to show" default:"20"`
}

func (h *HistoryCmd) Run(_ *Global, _ *CLI) error {
	store, err := history.Open(h.DB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, run := range runs {
		deployed := ""
		if run.Deployed {
			deployed = " deployed"
		}
		fmt.Printf("%s  %-8s  %-10s  %-8s  %6dms%s\n",
			run.StartedAt.Format(time.RFC3339),
			run.MatrixVersion,
			run.Branch,
			run.Outcome,
			run.DurationMS,
			deployed)
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abelbrown/livefeed/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historySince time.Duration
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled arrivals, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.IntVarP(&historyLimit, "limit", "n", 50, "number of arrivals to show")
	f.DurationVar(&historySince, "since", 0, "only arrivals first seen within this window (e.g. 2h)")
	f.BoolVar(&historyJSON, "json", false, "output JSON lines")
}

func runHistory(cmd *cobra.Command, args []string) error {
	journal, err := openJournal()
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := cmd.Context()
	var arrivals []store.Arrival
	if historySince > 0 {
		arrivals, err = journal.Since(ctx, time.Now().Add(-historySince))
		if err == nil && historyLimit > 0 && len(arrivals) > historyLimit {
			arrivals = arrivals[:historyLimit]
		}
	} else {
		arrivals, err = journal.Recent(ctx, historyLimit)
	}
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}

	if historyJSON {
		return writeHistoryJSON(cmd.OutOrStdout(), arrivals)
	}
	total, err := journal.Count(ctx)
	if err != nil {
		return fmt.Errorf("count journal: %w", err)
	}
	writeHistoryTable(cmd.OutOrStdout(), arrivals, total, time.Now())
	return nil
}

func writeHistoryJSON(w io.Writer, arrivals []store.Arrival) error {
	enc := json.NewEncoder(w)
	for _, a := range arrivals {
		line := struct {
			FirstSeen time.Time `json:"first_seen"`
			LastSeen  time.Time `json:"last_seen"`
			SeenCount int       `json:"seen_count"`
			Item      any       `json:"item"`
		}{a.FirstSeen, a.LastSeen, a.SeenCount, a.Item}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func writeHistoryTable(w io.Writer, arrivals []store.Arrival, total int, now time.Time) {
	if len(arrivals) == 0 {
		fmt.Fprintln(w, "No arrivals journaled yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEEN\tPRICE\tTITLE\tLOCATION\tURL")
	for _, a := range arrivals {
		price := "-"
		if a.Item.PriceEUR > 0 {
			price = "€" + humanize.Comma(int64(a.Item.PriceEUR+0.5))
		}
		seen := humanize.RelTime(a.FirstSeen, now, "ago", "from now")
		if a.SeenCount > 1 {
			seen += fmt.Sprintf(" (x%d)", a.SeenCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", seen, price, clip(a.Item.Title, 48), a.Item.Location, a.Item.URL)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %s arrivals\n", len(arrivals), humanize.Comma(int64(total)))
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

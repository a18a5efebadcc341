package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/logging"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/transport"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	tailInitial bool
	tailRecord  bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print new arrivals as JSON lines",
	Long: `tail runs the feed without a TUI and writes one JSON object per admitted
listing to stdout. Connection state changes go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailInitial, "initial", false, "also print the first load")
	tailCmd.Flags().BoolVar(&tailRecord, "record", false, "write arrivals to the journal")
}

// arrivalLine is one line of tail output.
type arrivalLine struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source,omitempty"`
	Initial bool      `json:"initial,omitempty"`
	feed.Item
}

// arrivalPrinter turns successive Views into arrival lines. It relies on
// arrivals being prepended: when View.Arrivals grows by n, the first n
// items are the new ones.
type arrivalPrinter struct {
	enc      *json.Encoder
	status   *log.Logger
	initial  bool
	arrivals int
	loaded   bool
	state    transport.State
	lastErr  error
}

func newArrivalPrinter(out io.Writer, status *log.Logger, initial bool) *arrivalPrinter {
	return &arrivalPrinter{
		enc:     json.NewEncoder(out),
		status:  status,
		initial: initial,
		state:   transport.StateDisconnected,
	}
}

// Publish implements controller.Publisher.
func (p *arrivalPrinter) Publish(v controller.View) {
	if v.State != p.state {
		p.state = v.State
		p.status.Info("state changed", "state", v.State.String())
	}
	if v.LastErr != nil && v.LastErr != p.lastErr {
		p.status.Warn("feed error", "err", v.LastErr)
	}
	p.lastErr = v.LastErr

	if v.FirstLoad {
		// reset: the next load starts over
		p.loaded = false
		p.arrivals = v.Arrivals
		return
	}
	if !p.loaded {
		p.loaded = true
		p.arrivals = v.Arrivals
		if p.initial {
			p.print(v, v.Items, true)
		}
		return
	}
	n := v.Arrivals - p.arrivals
	p.arrivals = v.Arrivals
	if n <= 0 {
		return
	}
	p.print(v, v.Items[:min(n, len(v.Items))], false)
}

func (p *arrivalPrinter) print(v controller.View, items []feed.Item, initial bool) {
	for _, it := range items {
		p.enc.Encode(arrivalLine{At: v.UpdatedAt, Source: v.Source, Initial: initial, Item: it})
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	evlog := openLogger()
	defer evlog.Close()
	evlog.Info(otel.KindStartup, "main", fmt.Sprintf("tail transport=%s base=%s", cfg.Transport, cfg.BaseURL()))
	logging.Debug("tail started", "events", cfg.Log.Path, "session", evlog.SessionID())

	var rec controller.Recorder
	if tailRecord {
		journal, err := openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()
		rec = journal
	}

	printer := newArrivalPrinter(cmd.OutOrStdout(), logging.WithPrefix("tail"), tailInitial)
	ctrl := newController(evlog, rec, printer)
	ctrl.Start(ctx)
	ctrl.Connect()

	<-ctx.Done()
	err := ctrl.Wait()
	if err != nil {
		logging.Error("controller stopped", "err", err)
	}
	evlog.Info(otel.KindShutdown, "main", "tail stopped")
	return err
}

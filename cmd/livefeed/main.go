// Command livefeed watches a listing feed and shows new arrivals as they
// appear.
//
// Usage:
//
//	livefeed                 Live TUI (same as "livefeed watch")
//	livefeed tail            Print arrivals as JSON lines, no TUI
//	livefeed history         Show journaled arrivals
//	livefeed events          JSONL event log viewer
//	livefeed config          Print or save the effective settings
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelbrown/livefeed/internal/config"
	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/logging"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/store"
	"github.com/abelbrown/livefeed/internal/transport"
	"github.com/spf13/cobra"
)

var (
	cfgPath       string
	baseURL       string
	transportName string
	source        string
	debug         bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "livefeed",
	Short: "Watch a listing feed for new arrivals",
	Long: `livefeed follows a listing feed over HTTP polling or a WebSocket push
channel, keeps a bounded newest-first list, and highlights listings that
arrive after the first load.

Settings come from the config file (JSON, YAML or TOML), then LIVEFEED_*
environment variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if debug {
			otel.SetTraceEnabled(true)
		}
		// the TUI owns the terminal, so its diagnostics go to a file
		if name := cmd.Name(); name == "livefeed" || name == "watch" {
			if err := logging.InitFile(filepath.Join(config.DataDir(), "logs"), debug); err != nil {
				return err
			}
		} else {
			logging.Init(cmd.ErrOrStderr(), debug)
		}
		return loadConfig(cmd)
	},
	RunE: runWatch,
}

func loadConfig(cmd *cobra.Command) error {
	c, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	o, err := config.EnvOverrides()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		o.Transport = transportName
	}
	if flags.Changed("base-url") {
		o.BaseURL = baseURL
	}
	if flags.Changed("source") {
		o.Source = source
	}
	c.Apply(o)
	cfg = c
	logging.Debug("config loaded", "path", cfgPath, "transport", cfg.Transport, "base", cfg.BaseURL())

	// these read or write local files only
	switch cmd.Name() {
	case "events", "history", "config":
		return nil
	}
	return cfg.Validate()
}

func main() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", config.ConfigPath(), "path to the config file")
	pf.StringVar(&baseURL, "base-url", "", "feed server base URL")
	pf.StringVarP(&transportName, "transport", "t", config.TransportPull, "transport: pull or push")
	pf.StringVarP(&source, "source", "s", "", "listing source sent with each poll")
	pf.BoolVar(&debug, "debug", false, "verbose diagnostics")

	rootCmd.AddCommand(watchCmd, tailCmd, historyCmd, eventsCmd, configCmd)
}

// newController builds a Controller over connectors made from cfg.
// rec may be nil.
func newController(log *otel.Logger, rec controller.Recorder, pub controller.Publisher) *controller.Controller {
	factory := func(src string) (transport.Connector, error) {
		return transport.New(cfg, src, transport.Options{Logger: log})
	}
	return controller.New(factory, controller.Options{
		Merge: feed.MergeOptions{
			MaxSize:            cfg.Feed.MaxSize,
			Seen:               feed.ParseSeenScope(cfg.Feed.SeenScope),
			HighlightFirstLoad: cfg.Feed.HighlightFirstLoad,
		},
		HighlightTTL: cfg.HighlightTTL(),
		Source:       cfg.Pull.Source,
		Logger:       log,
		Publisher:    pub,
		Recorder:     rec,
	})
}

// openLogger opens the JSONL event log, falling back to a null logger so a
// read-only home never blocks the feed.
func openLogger() *otel.Logger {
	log, err := otel.Open(cfg.Log.Path)
	if err != nil {
		logging.Warn("event log disabled", "path", cfg.Log.Path, "err", err)
		return otel.NewNullLogger()
	}
	return log
}

// openJournal opens the arrival journal, creating its directory.
func openJournal() (*store.Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	j, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

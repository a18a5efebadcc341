package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/logging"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var bell bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live TUI of the feed (default)",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&bell, "bell", false, "ring the terminal bell on new arrivals")
	rootCmd.Flags().AddFlagSet(watchCmd.Flags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	evlog := openLogger()
	defer evlog.Close()
	ring := otel.NewRingBuffer(512)
	evlog.SetRingBuffer(ring)
	evlog.Info(otel.KindStartup, "main", fmt.Sprintf("watch transport=%s base=%s", cfg.Transport, cfg.BaseURL()))
	logging.Info("watch started", "events", cfg.Log.Path, "session", evlog.SessionID())

	var rec controller.Recorder
	if cfg.Journal.Enabled {
		journal, err := openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()
		rec = journal
	}

	// program is assigned before the publisher starts delivering
	var program *tea.Program
	pub := ui.NewPublisher(func(m tea.Msg) { program.Send(m) })

	ctrl := newController(evlog, rec, pub)
	ctrlCtx, stopCtrl := context.WithCancel(ctx)
	ctrl.Start(ctrlCtx)

	appCfg := ui.AppConfig{
		Refresh:   ctrl.Refresh,
		Reconnect: ctrl.Reconnect,
		Retarget:  ctrl.Retarget,
		Ring:      ring,
		Initial:   ctrl.Current(),
	}
	if bell {
		appCfg.Bell = os.Stdout
	}

	program = tea.NewProgram(ui.NewApp(appCfg), tea.WithAltScreen(), tea.WithContext(ctx))
	go pub.Run(ctrlCtx)
	ctrl.Connect()

	_, runErr := program.Run()

	stopCtrl()
	if err := ctrl.Wait(); err != nil {
		evlog.Error(otel.KindError, "main", err)
		logging.Error("controller stopped", "err", err)
	}
	evlog.Info(otel.KindShutdown, "main", "watch stopped")

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

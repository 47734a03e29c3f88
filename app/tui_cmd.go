package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tasklog/app/client"
	"tasklog/app/config"
	"tasklog/app/events"
	"tasklog/app/tasksync"
	"tasklog/app/tui"

	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal client",
	Long: `Open the terminal client against a running tasklog server.

Changes are shown immediately and saved in the background. If a save fails
the list is reloaded from the server. Text and remarks edits are batched for
client.edit_debounce before they are sent.

Logs go to log.file, or to tasklog-tui.log in the temp directory.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().String("server", "", "server URL (overrides client.server_url)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if server, _ := cmd.Flags().GetString("server"); server != "" {
			cfg.Client.ServerURL = server
		}
		if cfg.Log.File == "" {
			cfg.Log.File = filepath.Join(os.TempDir(), "tasklog-tui.log")
		}
	})
	if err != nil {
		return err
	}

	logger, logCloser, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	c, err := client.New(cfg.Client.ServerURL, cfg.Client.Timeout, "")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl := tasksync.New(c, tasksync.Options{
		EditDebounce: cfg.Client.EditDebounce,
		Origin:       c.Origin(),
		Logger:       logger,
	})
	defer ctrl.Close()

	go func() {
		for {
			err := c.Watch(ctx, func(ev events.Event) { ctrl.Invalidated(ev.Origin) })
			if ctx.Err() != nil {
				return
			}
			logger.Warn("event stream disconnected", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()

	if err := tui.Run(ctx, ctrl); err != nil {
		return fmt.Errorf("terminal client: %w", err)
	}
	return nil
}

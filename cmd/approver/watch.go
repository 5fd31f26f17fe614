package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gipsh/safe-approver-go/internal/types"
	"github.com/gipsh/safe-approver-go/internal/ws"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream policy changes and approvals from a server",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher := ws.NewWatcher(approverClient.EventsURL(), func(ev types.Event) {
			if jsonOutput {
				_ = printJSON(ev)
				return
			}
			fmt.Printf("#%d %s %s\n", ev.Seq, ev.Time.Format("15:04:05"), ev)
		})
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/promoxa/community-client/internal/chat"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream the community feed to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		svc, err := e.newChatService()
		if err != nil {
			return err
		}
		defer svc.Disconnect()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc.OnConnectionChange(func(connected bool) {
			if connected {
				fmt.Fprintln(os.Stderr, "-- push channel connected")
			} else {
				fmt.Fprintln(os.Stderr, "-- push channel down, reconnecting (polling continues)")
			}
		})

		err = svc.Connect(ctx, e.identity(), func(msg chat.Message) {
			printMessage(msg)
		})
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		fmt.Fprintln(os.Stderr, "Streaming community feed. Ctrl+C to exit.")
		<-ctx.Done()
		return nil
	},
}

func printMessage(msg chat.Message) {
	badge := ""
	if msg.IsAdmin {
		badge = " [admin]"
	}
	if msg.IsPinned {
		badge += " [pinned]"
	}
	fmt.Printf("%s %s%s: %s\n", msg.CreatedAt.Local().Format(time.TimeOnly), msg.Username, badge, msg.Content)
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

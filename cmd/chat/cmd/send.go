package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message to the community feed",
	Args:  cobra.MinimumNArgs(1),
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

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := svc.Send(ctx, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}

		fmt.Printf("sent #%d at %s\n", msg.ID, msg.CreatedAt.Local().Format(time.TimeOnly))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

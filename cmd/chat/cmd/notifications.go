package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List account notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		list, err := e.api.Notifications(context.Background())
		if err != nil {
			return fmt.Errorf("fetch notifications: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("no notifications")
			return nil
		}
		for _, n := range list {
			marker := " "
			if !n.IsRead {
				marker = "*"
			}
			fmt.Printf("%s [%s] %s\n", marker, n.Type, n.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
}

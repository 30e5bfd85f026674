package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the stored credential's claims",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		claims, err := e.creds.Inspect()
		if err != nil {
			return fmt.Errorf("no usable credential: %w", err)
		}

		fmt.Printf("username: %s\n", claims.Username)
		if claims.ExpiresAt != nil {
			status := "valid"
			if e.creds.Expired() {
				status = "EXPIRED"
			}
			fmt.Printf("expires:  %s (%s)\n", claims.ExpiresAt.Time, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(unreadCmd)
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show unread message counts per conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		creds := getCredentials()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		counts, err := client.UnreadSnapshot(ctx, creds.UserID)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		total := 0
		for _, n := range counts {
			total += n
		}
		if total == 0 {
			fmt.Println("No unread messages.")
			return nil
		}

		// Resolve peer ids to names where possible.
		names := map[string]string{}
		if users, err := client.Users(ctx); err == nil {
			for _, u := range users {
				names[u.ID] = u.Name
			}
		}

		for peerID, n := range counts {
			if n == 0 {
				continue
			}
			name := names[peerID]
			if name == "" {
				name = peerID
			}
			fmt.Printf("%-16s %d\n", name, n)
		}
		fmt.Printf("total: %d\n", total)
		return nil
	},
}

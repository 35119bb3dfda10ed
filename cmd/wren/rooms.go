package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsCreateCmd)
	roomsCmd.AddCommand(roomsDeleteCmd)
	roomsCmd.AddCommand(roomsMembersCmd)
	roomsCmd.AddCommand(roomsInviteCmd)
	roomsCmd.AddCommand(roomsKickCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Manage chat rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rooms, err := client.Rooms(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(rooms) == 0 {
			fmt.Println("No rooms.")
			return nil
		}
		for _, r := range rooms {
			fmt.Printf("%-24s %s\n", r.ID, r.Name)
		}
		return nil
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		room, err := client.CreateRoom(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Created room %s (%s)\n", room.Name, room.ID)
		return nil
	},
}

var roomsDeleteCmd = &cobra.Command{
	Use:   "delete <room-id>",
	Short: "Delete a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.DeleteRoom(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Room deleted.")
		return nil
	},
}

var roomsMembersCmd = &cobra.Command{
	Use:   "members <room-id>",
	Short: "List room members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		members, err := client.RoomMembers(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		for _, u := range members {
			status := "offline"
			if u.Online {
				status = "online"
			}
			fmt.Printf("%-24s %-16s %s\n", u.ID, u.Name, status)
		}
		return nil
	},
}

var roomsInviteCmd = &cobra.Command{
	Use:   "invite <room-id> <user-id>",
	Short: "Add a user to a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.AddRoomMember(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Member added.")
		return nil
	},
}

var roomsKickCmd = &cobra.Command{
	Use:   "kick <room-id> <user-id>",
	Short: "Remove a user from a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.RemoveRoomMember(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Member removed.")
		return nil
	},
}

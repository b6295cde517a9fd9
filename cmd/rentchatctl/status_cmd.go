package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd, presenceCmd, pendingCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session connectivity and journal counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Session.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Session:       %s\n", resp.Session)
			fmt.Printf("User:          %s\n", resp.UserID)
			fmt.Printf("Uptime:        %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
			printChannel("Messaging:", resp.Messaging)
			if resp.Presence.Channel != "" {
				printChannel("Presence:", resp.Presence)
			}
			if resp.Current != "" {
				fmt.Printf("Foreground:    %s\n", resp.Current)
			}
			fmt.Printf("Conversations: %d\n", resp.ConversationCount)
			fmt.Printf("Messages:      %d\n", resp.MessageCount)
			fmt.Printf("Pending sends: %d\n", resp.PendingSends)
			return nil
		})
	},
}

func printChannel(label string, ch api.ChannelStatus) {
	line := ch.State
	if ch.Attempts > 0 {
		line += fmt.Sprintf(" (reconnect attempt %d)", ch.Attempts)
	}
	if ch.LastHeartbeatMs > 0 {
		line += ", last heard " + formatMillis(ch.LastHeartbeatMs)
	}
	fmt.Printf("%-14s %s\n", label, line)
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List known users and whether they are online",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Session.ListPresence(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			for _, u := range resp.Users {
				state := "offline"
				if u.IsOnline {
					state = "online"
				}
				name := u.UserName
				if name == "" {
					name = u.UserID
				}
				fmt.Printf("%-24s %-8s last seen %s\n", name, state, formatMillis(u.LastSeenMs))
			}
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List sends that are not yet confirmed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.ListPending(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			if len(resp.Sends) == 0 {
				fmt.Println("Nothing pending.")
				return nil
			}
			for _, p := range resp.Sends {
				reason := ""
				if p.FailureReason != "" {
					reason = " (" + p.FailureReason + ")"
				}
				fmt.Printf("%s  #%s  %-7s%s  %q\n", p.TempID, p.ConversationID, p.Status, reason, p.Body)
			}
			return nil
		})
	},
}

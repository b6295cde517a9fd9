package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/tui/client"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	conversationsLimit int
	historyBefore      int64
	historyLimit       int
	searchConversation string
	searchLimit        int
	sendFallback       bool
	watchPrefix        string
)

func init() {
	conversationsCmd.Flags().IntVar(&conversationsLimit, "limit", 0, "maximum conversations to list")
	historyCmd.Flags().Int64Var(&historyBefore, "before", 0, "only messages sent before this unix millisecond")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "page size")
	searchCmd.Flags().StringVar(&searchConversation, "conversation", "", "restrict to one conversation")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	sendCmd.Flags().BoolVar(&sendFallback, "fallback", false, "send through the REST API instead of the realtime channel")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only events whose kind starts with this (message., conn., ...)")

	rootCmd.AddCommand(
		conversationsCmd, messagesCmd, historyCmd, searchCmd,
		sendCmd, retryCmd, discardCmd,
		joinCmd, leaveCmd, readCmd, typingCmd, watchCmd,
	)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.ListConversations(ctx, &api.ListConversationsRequest{Limit: conversationsLimit})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			for _, cv := range resp.Conversations {
				title := cv.Title
				if title == "" {
					title = "-"
				}
				unread := ""
				if cv.Unread > 0 {
					unread = fmt.Sprintf("(%d) ", cv.Unread)
				}
				fmt.Printf("#%-8s %-24s %s  %s%s\n", cv.ID, title, formatMillis(cv.LastActivityMs), unread, cv.Preview)
			}
			return nil
		})
	},
}

func printMessages(msgs []api.Message) {
	for _, m := range msgs {
		from := m.SenderName
		if from == "" {
			from = m.SenderID
		}
		if m.FromMe {
			from = "you"
		}
		state := ""
		switch m.Status {
		case "PENDING":
			state = " [pending]"
		case "FAILED":
			state = " [failed: " + m.FailureReason + "]"
		}
		fmt.Printf("%s  %-6s %s: %s%s\n", formatMillis(m.SentAtMs), m.ID, from, m.Body, state)
	}
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation>",
	Short: "Show the messages the daemon holds for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.ListMessages(ctx, &api.ConversationRef{ConversationID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			printMessages(resp.Messages)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation>",
	Short: "Page through journaled messages, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.History(ctx, &api.HistoryRequest{
				ConversationID: args[0],
				BeforeMs:       historyBefore,
				Limit:          historyLimit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			printMessages(resp.Messages)
			if resp.HasMore && len(resp.Messages) > 0 {
				fmt.Printf("-- more: --before %d\n", resp.Messages[len(resp.Messages)-1].SentAtMs)
			}
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over journaled messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.SearchMessages(ctx, &api.SearchRequest{
				Query:          strings.Join(args, " "),
				ConversationID: searchConversation,
				Limit:          searchLimit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			for _, r := range resp.Results {
				fmt.Printf("#%-8s %s  %s\n", r.Message.ConversationID, formatMillis(r.Message.SentAtMs), r.Snippet)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation> <text...>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			req := &api.SendRequest{ConversationID: args[0], Body: strings.Join(args[1:], " ")}
			send := c.Chat.SendText
			if sendFallback {
				send = c.Chat.SendFallback
			}
			resp, err := send(ctx, req)
			if err != nil {
				if status.Code(err) == codes.Unavailable && !sendFallback {
					return fmt.Errorf("%w (retry with --fallback to use the REST API)", err)
				}
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			if resp.TempID != "" {
				fmt.Printf("queued %s (%s)\n", resp.TempID, resp.Message.Status)
			} else {
				fmt.Printf("sent %s\n", resp.Message.ID)
			}
			return nil
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <temp-id>",
	Short: "Resend a failed message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Chat.Retry(ctx, &api.TempRef{TempID: args[0]})
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <temp-id>",
	Short: "Drop a failed or pending message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Chat.Discard(ctx, &api.TempRef{TempID: args[0]})
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <conversation>",
	Short: "Make a conversation the foreground conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Chat.Join(ctx, &api.ConversationRef{ConversationID: args[0]})
		})
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave <conversation>",
	Short: "Send a conversation to the background",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Chat.Leave(ctx, &api.ConversationRef{ConversationID: args[0]})
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation>",
	Short: "Mark every message of a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.MarkRead(ctx, &api.ConversationRef{ConversationID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("%d marked read\n", len(resp.IDs))
			return nil
		})
	},
}

var typingCmd = &cobra.Command{
	Use:   "typing <conversation>",
	Short: "Show who is typing in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Chat.ListTyping(ctx, &api.ConversationRef{ConversationID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			for _, t := range resp.Users {
				name := t.UserName
				if name == "" {
					name = t.UserID
				}
				fmt.Printf("%s since %s\n", name, formatMillis(t.SinceMs))
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := resolveSession()
		if err != nil {
			return err
		}
		c, err := client.New(session.SocketPath(name))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream, err := c.Chat.WatchEvents(ctx, &api.WatchRequest{Prefix: watchPrefix})
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(evt)
				continue
			}
			fmt.Printf("%s %-22s %s\n", formatMillis(evt.AtMs), evt.Kind, describe(evt))
		}
	},
}

func describe(evt *api.Event) string {
	switch {
	case evt.Message != nil:
		return fmt.Sprintf("#%s %s: %s [%s]", evt.ConversationID, evt.Message.ID, evt.Message.Body, evt.Message.Status)
	case evt.Channel != nil:
		return evt.Channel.Channel + " " + evt.Channel.State
	case evt.Alert != nil:
		return evt.Alert.Severity + ": " + evt.Alert.Message
	case evt.Presence != nil:
		return fmt.Sprintf("%s online=%v", evt.Presence.UserID, evt.Presence.IsOnline)
	case evt.Conversation != nil:
		return fmt.Sprintf("#%s unread=%d %s", evt.Conversation.ID, evt.Conversation.Unread, evt.Conversation.Title)
	case evt.Typing != nil || evt.Kind == "typing.changed":
		return fmt.Sprintf("#%s %d typing", evt.ConversationID, len(evt.Typing))
	case evt.TempID != "":
		return evt.TempID + " " + evt.Text
	case len(evt.IDs) > 0:
		return fmt.Sprintf("#%s %s", evt.ConversationID, strings.Join(evt.IDs, ","))
	case evt.Text != "":
		return evt.Text
	default:
		return fmt.Sprintf("%d", evt.Count)
	}
}

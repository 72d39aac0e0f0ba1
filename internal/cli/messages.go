package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/example/carpool-client/internal/tui"
	"github.com/example/carpool-client/internal/views"
)

func (c *cli) conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			convs, err := c.app.Client.GetConversations(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(cmd, convs, func(w io.Writer) {
				rows := make([][]string, 0, len(convs))
				for _, conv := range convs {
					last := ""
					if conv.LastMessage != nil {
						last = conv.LastMessage.Content
					}
					rows = append(rows, []string{
						strconv.FormatInt(conv.OtherUser.ID, 10),
						fullName(conv.OtherUser),
						strconv.Itoa(conv.UnreadCount),
						last,
						when(conv.UpdatedAt),
					})
				}
				renderTable(w, []string{"User", "Name", "Unread", "Last message", "Updated"}, rows)
			})
		},
	}
}

func (c *cli) messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <userId>",
		Short: "Show the thread with a user and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			other, err := parseID(args[0], "userId")
			if err != nil {
				return err
			}
			th, err := c.app.Client.GetMessages(cmd.Context(), other)
			if err != nil {
				return err
			}
			return c.render(cmd, th, func(w io.Writer) {
				if len(th.Messages) == 0 {
					fmt.Fprintln(w, mutedStyle.Render("No messages yet."))
					return
				}
				for _, m := range th.Messages {
					// a thread has two parties; anything not from them is ours
					who := "them"
					if m.SenderID != other {
						who = "you"
					}
					fmt.Fprintf(w, "%s %-4s %s\n", mutedStyle.Render(when(m.CreatedAt)), who+":", m.Content)
				}
			})
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <userId> <message...>",
		Short: "Send a message to a connected user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			other, err := parseID(args[0], "userId")
			if err != nil {
				return err
			}
			msg, err := c.app.Client.SendMessage(cmd.Context(), other, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return c.render(cmd, msg, func(w io.Writer) {
				fmt.Fprintln(w, "Message sent.")
			})
		},
	}
}

func (c *cli) unreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show the total unread message count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := views.NewUnreadBadge(c.app.Client, c.app.ViewDeps(nil))
			b.Refresh(cmd.Context())
			snap := b.Snapshot()
			return c.render(cmd, snap, func(w io.Writer) {
				fmt.Fprintf(w, "Unread messages: %d\n", snap.Count)
			})
		},
	}
}

// watchCmd mounts the unread badge and prints the count whenever it
// changes, until interrupted.
func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the unread count and print every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.app.Session.CheckAuth(ctx); err != nil {
				return err
			}

			var mu sync.Mutex
			notify := views.NotifierFunc(func(u views.Update) {
				snap, ok := u.Payload.(views.UnreadSnapshot)
				if u.Kind != views.UpdateState || !ok {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				_ = c.render(cmd, snap, func(w io.Writer) {
					fmt.Fprintf(w, "%s unread messages: %d\n", u.At.Local().Format("15:04:05"), snap.Count)
				})
			})
			b := views.NewUnreadBadge(c.app.Client, c.app.ViewDeps(notify))
			b.Mount(ctx)
			defer b.Unmount()

			<-ctx.Done()
			return nil
		},
	}
}

func (c *cli) inboxCmd() *cobra.Command {
	var openUser int64
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Open the interactive terminal inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.app.Session.CheckAuth(ctx); err != nil {
				return err
			}
			bridge := tui.NewBridge()
			inbox := views.NewMessagesView(c.app.Client, c.app.ViewDeps(bridge))
			return c.opts.RunInbox(ctx, inbox, bridge, c.app.Session.User().ID, openUser)
		},
	}
	cmd.Flags().Int64Var(&openUser, "user", 0, "open the conversation with this user")
	return cmd
}

func (c *cli) imageURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image-url <profilePath>",
		Short: "Resolve a stored profile image path to a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := c.app.Client.ProfileImageURL(args[0])
			return c.render(cmd, map[string]string{"url": u}, func(w io.Writer) {
				fmt.Fprintln(w, u)
			})
		},
	}
}

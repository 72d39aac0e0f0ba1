package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/views"
)

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &api.Error{Kind: api.KindInvalidInput, Message: fmt.Sprintf("%s must be a positive number, got %q", what, raw)}
	}
	return id, nil
}

func matchSummary(m models.MatchScore) string {
	var parts []string
	if m.SameHomeCity {
		parts = append(parts, "city")
	}
	if m.SameHomeStreet {
		parts = append(parts, "street")
	}
	if m.SameHomeZipcode {
		parts = append(parts, "zip")
	}
	return strings.Join(parts, ",")
}

func (c *cli) searchCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find coworkers to carpool with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := models.ParseSearchType(typ)
			if err != nil {
				return &api.Error{Kind: api.KindInvalidInput, Op: "search", Message: err.Error()}
			}
			v := views.NewSearchView(c.app.Client, c.app.ViewDeps(nil))
			if err := v.Search(cmd.Context(), t); err != nil {
				return err
			}
			results := v.Snapshot().Results.Value
			return c.render(cmd, results, func(w io.Writer) {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						fullName(r.UserProfile),
						string(r.Role),
						officeLabel(r.CompanyAddress),
						matchSummary(r.MatchScore),
					})
				}
				renderTable(w, []string{"ID", "Name", "Role", "Office", "Match"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(models.SearchAll), "match on all, office, street or city")
	return cmd
}

func (c *cli) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <userId>",
		Short: "Send a connection request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "userId")
			if err != nil {
				return err
			}
			v := views.NewSearchView(c.app.Client, c.app.ViewDeps(nil))
			if err := v.Connect(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) requestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests",
		Short: "List received and sent connection requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs, err := c.app.Client.GetConnectionRequests(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(cmd, reqs, func(w io.Writer) {
				fmt.Fprintln(w, headerStyle.Render("Received"))
				renderTable(w, []string{"ID", "From", "Status", "Sent"}, requestRows(reqs.Received, func(r models.ConnectionRequest) *models.UserProfile { return r.Sender }))
				fmt.Fprintln(w, headerStyle.Render("Sent"))
				renderTable(w, []string{"ID", "To", "Status", "Sent"}, requestRows(reqs.Sent, func(r models.ConnectionRequest) *models.UserProfile { return r.Receiver }))
			})
		},
	}
}

func requestRows(reqs []models.ConnectionRequest, who func(models.ConnectionRequest) *models.UserProfile) [][]string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		name := ""
		if u := who(r); u != nil {
			name = fullName(*u)
		}
		rows = append(rows, []string{strconv.FormatInt(r.ID, 10), name, string(r.Status), when(r.CreatedAt)})
	}
	return rows
}

func (c *cli) acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <requestId>",
		Short: "Accept a connection request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "requestId")
			if err != nil {
				return err
			}
			v := views.NewConnectionsView(c.app.Client, c.app.ViewDeps(nil))
			if err := v.Accept(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <requestId>",
		Short: "Reject a connection request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "requestId")
			if err != nil {
				return err
			}
			v := views.NewConnectionsView(c.app.Client, c.app.ViewDeps(nil))
			if err := v.Reject(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) connectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List the users you are connected with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := c.app.Client.GetConnectedUsers(cmd.Context())
			if err != nil {
				return err
			}
			return c.render(cmd, users, func(w io.Writer) {
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{strconv.FormatInt(u.ID, 10), fullName(u.UserProfile), string(u.Role), when(u.ConnectedAt)})
				}
				renderTable(w, []string{"ID", "Name", "Role", "Connected"}, rows)
			})
		},
	}
}

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/views"
)

func (c *cli) groupsView() *views.GroupsView {
	return views.NewGroupsView(c.app.Client, c.app.Config.DefaultGroupSeats, c.app.ViewDeps(nil))
}

func (c *cli) groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Create, find and run carpool groups",
	}
	cmd.AddCommand(
		c.groupsCreateCmd(),
		c.groupsListCmd(),
		c.groupsShowCmd(),
		c.groupsOpenCmd(),
		c.groupsJoinCmd(),
		c.groupsRequestsCmd(),
		c.groupsVoteCmd(),
		c.groupsLeaveCmd(),
		c.groupsCloseCmd(),
		c.groupsMineCmd(),
	)
	return cmd
}

func groupRows(groups []models.CarpoolGroup) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		driver := ""
		if g.Driver != nil {
			driver = fullName(*g.Driver)
		}
		rows = append(rows, []string{
			strconv.FormatInt(g.ID, 10),
			g.Name,
			string(g.Status),
			fmt.Sprintf("%d/%d", g.CurrentOccupancy, g.MaxSeats),
			strconv.FormatFloat(g.DetourMiles, 'f', 1, 64),
			driver,
		})
	}
	return rows
}

var groupHeaders = []string{"ID", "Name", "Status", "Seats", "Detour mi", "Driver"}

func (c *cli) groupsCreateCmd() *cobra.Command {
	var seats int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a carpool group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := c.groupsView()
			g, err := v.CreateGroup(cmd.Context(), args[0], seats)
			if err != nil {
				return err
			}
			return c.render(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "%s (#%d, %d seats)\n", v.Notice(), g.ID, g.MaxSeats)
			})
		},
	}
	cmd.Flags().IntVar(&seats, "seats", 0, "maximum seats (defaults to GROUP_DEFAULT_SEATS)")
	return cmd
}

func (c *cli) groupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the groups you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := c.groupsView()
			if err := v.SetTab(cmd.Context(), views.TabMyGroups); err != nil {
				return err
			}
			groups := v.Snapshot().Page.Value.MyGroups
			return c.render(cmd, groups, func(w io.Writer) {
				renderTable(w, groupHeaders, groupRows(groups))
			})
		},
	}
}

func (c *cli) groupsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <groupId>",
		Short: "Show a group, its members and, for members, pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			v := c.groupsView()
			if err := v.SelectGroup(cmd.Context(), id); err != nil {
				return err
			}
			page := v.Snapshot().Page.Value
			out := struct {
				Group   *models.CarpoolGroup `json:"group" yaml:"group"`
				Pending []models.JoinRequest `json:"pending" yaml:"pending"`
			}{page.Selected, page.Pending}

			return c.render(cmd, out, func(w io.Writer) {
				g := page.Selected
				fmt.Fprintf(w, "%s (#%d) %s, %d/%d seats\n", g.Name, g.ID, g.Status, g.CurrentOccupancy, g.MaxSeats)
				if g.Destination != nil {
					fmt.Fprintf(w, "to %s, %s\n", g.Destination.OfficeName, g.Destination.City)
				}
				rows := make([][]string, 0, len(g.Members))
				for _, m := range g.Members {
					name := m.User.Name
					if m.IsSelf {
						name += " (you)"
					}
					rows = append(rows, []string{strconv.FormatInt(m.User.ID, 10), name, m.Role, strconv.FormatFloat(m.DetourMiles, 'f', 1, 64)})
				}
				renderTable(w, []string{"User", "Name", "Role", "Detour mi"}, rows)
				if g.IsMember() {
					fmt.Fprintln(w, headerStyle.Render("Pending requests"))
					renderTable(w, []string{"ID", "User", "Votes", "Voted"}, joinRequestRows(page.Pending))
				}
			})
		},
	}
}

func joinRequestRows(reqs []models.JoinRequest) [][]string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.User.Name,
			fmt.Sprintf("%d/%d", r.VotesReceived, r.VotesRequired),
			yesNo(r.HasVoted),
		})
	}
	return rows
}

func (c *cli) groupsOpenCmd() *cobra.Command {
	var maxDetour float64
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Find open groups within a detour limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxDetour < 0 {
				return &api.Error{Kind: api.KindInvalidInput, Message: "--max-detour must not be negative"}
			}
			v := c.groupsView()
			if err := v.SetMaxDetour(cmd.Context(), maxDetour); err != nil {
				return err
			}
			if err := v.SetTab(cmd.Context(), views.TabFindGroups); err != nil {
				return err
			}
			groups := v.Snapshot().Page.Value.OpenGroups
			return c.render(cmd, groups, func(w io.Writer) {
				renderTable(w, groupHeaders, groupRows(groups))
			})
		},
	}
	cmd.Flags().Float64Var(&maxDetour, "max-detour", views.DefaultMaxDetourMiles, "maximum detour in miles")
	return cmd
}

func (c *cli) groupsJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <groupId>",
		Short: "Ask to join a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			v := c.groupsView()
			if err := v.Join(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) groupsRequestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests <groupId>",
		Short: "List pending join requests of a group you belong to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			reqs, err := c.app.Client.GetGroupRequests(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.render(cmd, reqs, func(w io.Writer) {
				renderTable(w, []string{"ID", "User", "Votes", "Voted"}, joinRequestRows(reqs))
			})
		},
	}
}

func (c *cli) groupsVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "vote <groupId> <requestId> approve|reject",
		Short:     "Vote on a join request",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{string(models.VoteApprove), string(models.VoteReject)},
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			requestID, err := parseID(args[1], "requestId")
			if err != nil {
				return err
			}
			vote, err := models.ParseVote(args[2])
			if err != nil {
				return &api.Error{Kind: api.KindInvalidInput, Op: "group_vote", Message: err.Error()}
			}
			res, err := c.groupsView().Vote(cmd.Context(), groupID, requestID, vote)
			if err != nil {
				return err
			}
			return c.render(cmd, res, func(w io.Writer) {
				fmt.Fprintln(w, res.Summary())
			})
		},
	}
}

func (c *cli) groupsLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <groupId>",
		Short: "Leave a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			v := c.groupsView()
			if err := v.Leave(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) groupsCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <groupId>",
		Short: "Close a group to new members (driver only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "groupId")
			if err != nil {
				return err
			}
			v := c.groupsView()
			if err := v.Close(cmd.Context(), id); err != nil {
				return err
			}
			return c.say(cmd, v.Notice())
		},
	}
}

func (c *cli) groupsMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your own join requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := c.groupsView()
			if err := v.SetTab(cmd.Context(), views.TabMyRequests); err != nil {
				return err
			}
			reqs := v.Snapshot().Page.Value.MyRequests
			return c.render(cmd, reqs, func(w io.Writer) {
				rows := make([][]string, 0, len(reqs))
				for _, r := range reqs {
					name := ""
					if r.Group != nil {
						name = r.Group.Name
					}
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						strconv.FormatInt(r.GroupID, 10),
						name,
						string(r.Status),
						fmt.Sprintf("%d/%d", r.VotesReceived, r.VotesRequired),
					})
				}
				renderTable(w, []string{"ID", "Group", "Name", "Status", "Votes"}, rows)
			})
		},
	}
}

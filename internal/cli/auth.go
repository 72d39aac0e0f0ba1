package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/session"
)

func (c *cli) signupCmd() *cobra.Command {
	var (
		req         api.SignupRequest
		role        string
		license     bool
		profilePath string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Example: `  carpool signup --first-name Ada --last-name Lovelace --email ada@example.com \
    --password secret --role driver --willing-to-take 2,3 --home-city Austin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Role = models.Role(strings.ToLower(role))
			if cmd.Flags().Changed("drivers-license") {
				req.HasDriversLicense = &license
			}
			if req.Password == "" {
				pw, err := c.readSecret(cmd, "Password: ")
				if err != nil {
					return err
				}
				req.Password = pw
			}
			if profilePath != "" {
				f, err := os.Open(profilePath)
				if err != nil {
					return fmt.Errorf("failed to open profile image: %w", err)
				}
				defer f.Close()
				req.Profile = &api.FileUpload{Field: "profile", Filename: filepath.Base(profilePath), Content: f}
			}

			tok, err := c.app.Client.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := c.app.Session.Login(cmd.Context(), tok.AccessToken, nil); err != nil {
				return err
			}
			return c.renderSession(cmd, "Account created.")
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.FirstName, "first-name", "", "first name")
	f.StringVar(&req.LastName, "last-name", "", "last name")
	f.StringVar(&req.Email, "email", "", "email address")
	f.StringVar(&req.Password, "password", "", "password (prompted when omitted)")
	f.StringVar(&req.Phone, "phone", "", "phone number")
	f.StringVar(&role, "role", string(models.RolePassenger), "driver or passenger")
	f.StringVar(&req.CompanyAddress.OfficeName, "office-name", "", "office name")
	f.StringVar(&req.CompanyAddress.Street, "company-street", "", "office street")
	f.StringVar(&req.CompanyAddress.City, "company-city", "", "office city")
	f.StringVar(&req.CompanyAddress.Zipcode, "company-zip", "", "office zip code")
	f.StringVar(&req.HomeAddress.Street, "home-street", "", "home street")
	f.StringVar(&req.HomeAddress.City, "home-city", "", "home city")
	f.StringVar(&req.HomeAddress.Zipcode, "home-zip", "", "home zip code")
	f.IntSliceVar(&req.WillingToTake, "willing-to-take", nil, "passenger counts a driver is willing to take")
	f.BoolVar(&license, "drivers-license", false, "whether you hold a driver's license")
	f.StringVar(&profilePath, "profile", "", "profile image to upload")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return &api.Error{Kind: api.KindInvalidInput, Op: "login", Message: "--email is required"}
			}
			if password == "" {
				pw, err := c.readSecret(cmd, "Password: ")
				if err != nil {
					return err
				}
				password = pw
			}
			if err := c.app.Session.SignIn(cmd.Context(), c.app.Client, email, password); err != nil {
				return err
			}
			return c.renderSession(cmd, "Logged in.")
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when omitted)")
	return cmd
}

// readSecret prompts with masked echo when the input is a terminal and
// otherwise reads one line, so passwords can be piped in.
func (c *cli) readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return c.opts.ReadPassword(cmd.Context(), f, cmd.ErrOrStderr(), prompt)
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			return c.say(cmd, "Logged out.")
		},
	}
}

type statusReport struct {
	Authenticated bool                `json:"authenticated" yaml:"authenticated"`
	APIBaseURL    string              `json:"apiBaseUrl" yaml:"apiBaseUrl"`
	TokenStore    string              `json:"tokenStore" yaml:"tokenStore"`
	Claims        *session.Claims     `json:"claims,omitempty" yaml:"claims,omitempty"`
	Expired       bool                `json:"expired" yaml:"expired"`
	User          *models.UserProfile `json:"user,omitempty" yaml:"user,omitempty"`
	Reason        string              `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session: token claims and whether the backend accepts it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rep := statusReport{APIBaseURL: c.app.Config.APIBaseURL, TokenStore: c.app.Config.TokenStore}
			if claims, err := c.app.Session.Claims(ctx); err == nil {
				rep.Claims = claims
				rep.Expired = claims.Expired(time.Now())
			}
			if err := c.app.Session.CheckAuth(ctx); err != nil {
				rep.Reason = err.Error()
			}
			snap := c.app.Session.Snapshot()
			rep.Authenticated, rep.User = snap.Authenticated, snap.User

			return c.render(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "API:           %s\n", rep.APIBaseURL)
				fmt.Fprintf(w, "Token store:   %s\n", rep.TokenStore)
				fmt.Fprintf(w, "Authenticated: %s\n", yesNo(rep.Authenticated))
				if rep.User != nil {
					fmt.Fprintf(w, "User:          %s (#%d)\n", fullName(*rep.User), rep.User.ID)
				}
				if rep.Claims != nil && !rep.Claims.ExpiresAt.IsZero() {
					state := "valid"
					if rep.Expired {
						state = "expired"
					}
					fmt.Fprintf(w, "Token expires: %s (%s)\n", rep.Claims.ExpiresAt.Local().Format(time.RFC1123), state)
				}
				if rep.Reason != "" {
					fmt.Fprintf(w, "Reason:        %s\n", rep.Reason)
				}
			})
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.CheckAuth(cmd.Context()); err != nil {
				return err
			}
			u := c.app.Session.User()
			return c.render(cmd, u, func(w io.Writer) {
				fmt.Fprintf(w, "%s <%s>\n", fullName(*u), u.Email)
				fmt.Fprintf(w, "id: %d  role: %s\n", u.ID, u.Role)
				if u.CompanyAddress != nil {
					fmt.Fprintf(w, "office: %s, %s\n", u.CompanyAddress.OfficeName, u.CompanyAddress.City)
				}
				if u.HomeAddress != nil {
					fmt.Fprintf(w, "home: %s, %s %s\n", u.HomeAddress.Street, u.HomeAddress.City, u.HomeAddress.Zipcode)
				}
				if img := c.app.Client.ProfileImageURL(u.ProfilePath); img != "" {
					fmt.Fprintf(w, "image: %s\n", img)
				}
			})
		},
	}
}

func (c *cli) renderSession(cmd *cobra.Command, msg string) error {
	snap := c.app.Session.Snapshot()
	return c.render(cmd, snap, func(w io.Writer) {
		if snap.User != nil {
			fmt.Fprintf(w, "%s Welcome, %s.\n", msg, snap.User.FirstName)
			return
		}
		fmt.Fprintln(w, msg)
	})
}

// Package cli is the carpool command line: one subcommand per backend
// operation plus the polling watch and the terminal inbox.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/carpool-client/internal/bootstrap"
	"github.com/example/carpool-client/internal/config"
	"github.com/example/carpool-client/internal/logging"
	"github.com/example/carpool-client/internal/tui"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// Options are the process-level seams of the CLI. Zero values fall back to
// the real terminal, bootstrap.New and the tui package.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	Bootstrap func(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*bootstrap.App, error)
	RunInbox  func(ctx context.Context, inbox tui.Inbox, bridge *tui.Bridge, selfID, openUserID int64) error
	// ReadPassword prompts for a secret when the input is a terminal.
	ReadPassword func(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error)
}

func (o Options) withDefaults() Options {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
	if o.Bootstrap == nil {
		o.Bootstrap = bootstrap.New
	}
	if o.RunInbox == nil {
		o.RunInbox = tui.Run
	}
	if o.ReadPassword == nil {
		o.ReadPassword = tui.ReadPassword
	}
	return o
}

type cli struct {
	opts Options

	output   string
	apiURL   string
	logLevel string

	app *bootstrap.App
}

// Run executes the CLI with args and releases whatever the command opened.
func Run(ctx context.Context, opts Options, args []string) error {
	c := &cli{opts: opts.withDefaults()}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carpool",
		Short: "Command line client for the carpool service",
		Long: `carpool talks to the carpool backend: find coworkers to ride with,
manage connection requests, message your connections and run carpool
groups. The session token is persisted between invocations.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetIn(c.opts.In)
	root.SetOut(c.opts.Out)
	root.SetErr(c.opts.Err)

	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputText, "output format: text, json or yaml")
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "backend base URL (overrides CARPOOL_API_URL)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		c.signupCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.whoamiCmd(),
		c.searchCmd(),
		c.connectCmd(),
		c.requestsCmd(),
		c.acceptCmd(),
		c.rejectCmd(),
		c.connectionsCmd(),
		c.conversationsCmd(),
		c.messagesCmd(),
		c.sendCmd(),
		c.unreadCmd(),
		c.watchCmd(),
		c.inboxCmd(),
		c.groupsCmd(),
		c.imageURLCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	switch c.output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("invalid --output %q: must be text, json or yaml", c.output)
	}

	cfg, err := config.ClientConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.apiURL != "" {
		cfg.APIBaseURL = strings.TrimRight(c.apiURL, "/")
	}
	if c.logLevel != "" {
		cfg.LogLevel = strings.ToLower(c.logLevel)
	}
	if err := errors.Join(cfg.Validate()...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, c.opts.Err).With("app", "carpool")
	app, err := c.opts.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

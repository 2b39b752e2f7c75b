// Package cli wires the loader into the hcrecalls command.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	loader "github.com/coyt0001/hcrecalls-dynamodb-loader"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/config"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/logging"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/progress"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/recalls"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/uid"
)

// Deps are the outside-world hooks of the command. Zero fields fall back to
// the real implementations.
type Deps struct {
	// NewClient builds the DynamoDB client.
	NewClient func(ctx context.Context, cfg config.AWS) (loader.DynamoClient, error)
	// Stdin feeds the confirmation prompt.
	Stdin io.Reader
	// Interactive reports whether Stdin is a terminal.
	Interactive func() bool
	// Progress builds the status line shown during uploads.
	Progress func(w io.Writer) loader.ProgressReporter
	// Env looks up environment variables; nil means the process
	// environment plus the --env-file files.
	Env config.Lookup
}

func (d Deps) withDefaults() Deps {
	if d.NewClient == nil {
		d.NewClient = NewDynamoClient
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Interactive == nil {
		d.Interactive = func() bool { return progress.IsTerminal(os.Stdin) }
	}
	if d.Progress == nil {
		d.Progress = func(w io.Writer) loader.ProgressReporter { return progress.New(w) }
	}
	return d
}

// app is the state shared by all subcommands of one invocation.
type app struct {
	deps    Deps
	cfg     config.Config
	base    zerolog.Logger // session-tagged, without component
	log     zerolog.Logger
	session string
	prompt  *Prompt

	progressOut io.Writer
}

// NewRootCmd creates the hcrecalls command with the real dependencies.
func NewRootCmd(version string) *cobra.Command {
	return NewRootCmdWith(version, Deps{})
}

// NewRootCmdWith creates the hcrecalls command with deps injected.
func NewRootCmdWith(version string, deps Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:           "hcrecalls",
		Short:         "Load Health Canada recalls into DynamoDB",
		Long:          "hcrecalls fetches recent recalls per category, strips their markup and bulk loads them into a DynamoDB table.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	addGlobalFlags(cmd)
	cmd.AddCommand(
		newFetchCmd(a),
		newCleanCmd(a),
		newUploadCmd(a),
		newRunCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path, flags.Changed("config"))
	if err != nil {
		return err
	}

	lookup := a.deps.Env
	if lookup == nil {
		files, _ := flags.GetStringSlice("env-file")
		if lookup, err = config.Env(files...); err != nil {
			return fmt.Errorf("env file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return err
	}
	if err := applyFlags(flags, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	base, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.session = uid.New()
	a.base = logging.Session(base, a.session)
	a.log = logging.Component(a.base, "cli")
	a.prompt = NewPrompt(cmd.ErrOrStderr(), a.deps.Stdin, a.deps.Interactive())
	a.progressOut = cmd.ErrOrStderr()
	a.log.Debug().Str("command", cmd.Name()).Str("table", cfg.Table.Name).Msg("command started")
	return nil
}

// categories resolves positional arguments, falling back to the configured
// list.
func (a *app) categories(args []string) ([]recalls.Category, error) {
	if len(args) == 0 {
		return a.cfg.CategoryList(), nil
	}
	out := make([]recalls.Category, 0, len(args))
	for _, s := range args {
		c, err := recalls.ParseCategory(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *app) fetcher() *recalls.Client {
	return recalls.New(
		recalls.WithBaseURL(a.cfg.Fetch.BaseURL),
		recalls.WithLanguage(a.cfg.Fetch.Language),
		recalls.WithTimeout(a.cfg.Fetch.Timeout),
		recalls.WithConcurrency(a.cfg.Fetch.Concurrency),
		recalls.WithLogger(logging.Component(a.base, "fetch")),
	)
}

func categoryTag(c recalls.Category) string { return strconv.Itoa(int(c)) }

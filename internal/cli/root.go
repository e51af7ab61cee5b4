// Package cli implements curationctl, the operator CLI for the review
// consensus API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FreddieTree/manual-review-sub000/client"
)

const version = "curationctl v0.1.0"

type options struct {
	v          *viper.Viper
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand builds the command tree. Settings resolve from flags, then
// CURATIONCTL_* environment variables, then the optional config file.
func NewRootCommand(stdout io.Writer, stderr io.Writer) *cobra.Command {
	opts := &options{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "curationctl",
		Short: "Operate the assertion review consensus service",
		Long: `curationctl talks to a running review consensus API.

It imports document corpora, inspects the arbitration queue and active
leases, records arbitration decisions, and exports the consensus set.

Settings hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (CURATIONCTL_*)
3. Config file (--config)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml)")
	flags.String("server", "http://localhost:8080", "review API base URL")
	flags.String("user", "", "acting user id (X-User-Id)")
	flags.String("role", "admin", "acting role (X-User-Role)")
	flags.Duration("timeout", 60*time.Second, "per-request timeout")
	flags.Float64("rps", 10, "max requests per second, 0 disables limiting")
	for _, name := range []string{"server", "user", "role", "timeout", "rps"} {
		_ = opts.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newVersionCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newQueueCommand(opts),
		newDecideCommand(opts),
		newHistoryCommand(opts),
		newLeasesCommand(opts),
		newStatsCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

func (o *options) initConfig() error {
	o.v.SetEnvPrefix("CURATIONCTL")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	if o.configFile == "" {
		return nil
	}
	o.v.SetConfigFile(o.configFile)
	o.v.SetConfigType("yaml")
	if err := o.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", o.configFile, err)
	}
	return nil
}

func (o *options) client() (*client.Client, error) {
	user := strings.TrimSpace(o.v.GetString("user"))
	if user == "" {
		return nil, fmt.Errorf("--user (or CURATIONCTL_USER) is required")
	}
	return client.New(o.v.GetString("server"), client.Options{
		UserID:            user,
		Role:              o.v.GetString("role"),
		RequestsPerSecond: o.v.GetFloat64("rps"),
		Burst:             1,
		Logger:            slog.New(slog.NewTextHandler(o.stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
}

func (o *options) printJSON(value any) error {
	encoder := json.NewEncoder(o.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func newVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(opts.stdout, version)
		},
	}
}

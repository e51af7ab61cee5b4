package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FreddieTree/manual-review-sub000/client"
	reviewhttp "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
	"github.com/FreddieTree/manual-review-sub000/internal/platform/config"
)

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.v.GetDuration("timeout"))
}

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import a JSONL document corpus",
		Long: `Upload a JSONL corpus (one document per line). Documents already known
to the service are merged by assertion key; nothing is duplicated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open corpus: %w", err)
			}
			defer file.Close()

			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ImportJSONL(ctx, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "imported=%d merged=%d unchanged=%d failed=%d\n",
				resp.Imported, resp.Merged, resp.Unchanged, resp.Failed)
			for _, failure := range resp.Errors {
				fmt.Fprintf(opts.stderr, "line %d %s: %s\n", failure.Position, failure.DocumentID, failure.Message)
			}
			if resp.Failed > 0 {
				return fmt.Errorf("%d documents failed to import", resp.Failed)
			}
			return nil
		},
	}
}

func newExportCommand(opts *options) *cobra.Command {
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the consensus set",
	}

	var outPath string
	stream := &cobra.Command{
		Use:   "stream",
		Short: "Stream consensus records as JSONL",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := opts.client()
			if err != nil {
				return err
			}
			writer := bufio.NewWriter(opts.stdout)
			if outPath != "" {
				file, createErr := os.Create(outPath)
				if createErr != nil {
					return fmt.Errorf("create export file: %w", createErr)
				}
				defer func() {
					if closeErr := file.Close(); closeErr != nil && err == nil {
						err = fmt.Errorf("close export file: %w", closeErr)
					}
				}()
				writer = bufio.NewWriter(file)
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			written, err := c.ExportConsensus(ctx, writer)
			if err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("flush export: %w", err)
			}
			if outPath != "" {
				fmt.Fprintf(opts.stderr, "wrote %d bytes to %s\n", written, outPath)
			}
			return nil
		},
	}
	stream.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")

	var confirm bool
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a server-side consensus snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("snapshot export requires --confirm")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ExportSnapshot(ctx, true)
			if err != nil {
				return err
			}
			return opts.printJSON(resp)
		},
	}
	snapshot.Flags().BoolVar(&confirm, "confirm", false, "confirm the snapshot write")

	snapshots := &cobra.Command{
		Use:   "snapshots",
		Short: "List previous snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ListSnapshots(ctx)
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(table, "SNAPSHOT\tRECORDS\tCREATED BY\tCREATED AT\tPATH")
			for _, item := range resp.Items {
				fmt.Fprintf(table, "%s\t%d\t%s\t%s\t%s\n", item.SnapshotID, item.RecordCount, item.CreatedBy, item.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), item.Path)
			}
			return table.Flush()
		},
	}

	export.AddCommand(stream, snapshot, snapshots)
	return export
}

func newQueueCommand(opts *options) *cobra.Command {
	var (
		documentID     string
		all            bool
		includePending bool
		limit          int
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List the arbitration queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			onlyConflicts := !all
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ListQueue(ctx, client.QueueOptions{
				DocumentID:     documentID,
				OnlyConflicts:  &onlyConflicts,
				IncludePending: includePending,
				Limit:          limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return opts.printJSON(resp)
			}
			return writeQueueTable(opts, resp)
		},
	}
	cmd.Flags().StringVar(&documentID, "document-id", "", "restrict to one document")
	cmd.Flags().BoolVar(&all, "all", false, "include non-conflicting items")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "include items below the reviewer quorum")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func writeQueueTable(opts *options, resp reviewhttp.QueueResponse) error {
	table := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "DOCUMENT\tASSERTION\tSTATUS\tREASON\tREVIEWERS")
	for _, item := range resp.Items {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%d\n", item.DocumentID, item.AssertionKey, item.Status, item.ConflictReason, len(item.Reviewers))
	}
	if err := table.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(opts.stdout, "total=%d conflicts=%d pending=%d\n", resp.Summary.Total, resp.Summary.Conflicts, resp.Summary.Pending)
	return nil
}

func newDecideCommand(opts *options) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "decide <document-id> <assertion-key> <accept|reject|modify|uncertain>",
		Short: "Record an arbitration decision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.DecideArbitration(ctx, reviewhttp.DecideArbitrationRequest{
				DocumentID:   args[0],
				AssertionKey: args[1],
				Decision:     args[2],
				Comment:      comment,
			})
			if err != nil {
				return err
			}
			return opts.printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "decision comment")
	return cmd
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id> <assertion-key>",
		Short: "Show arbitration rulings recorded for an assertion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ArbitrationHistory(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(table, "DECIDED AT	ADMIN	DECISION	COMMENT")
			for _, entry := range resp.History {
				fmt.Fprintf(table, "%s	%s	%s	%s\n", entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), entry.ActorID, entry.Decision, entry.Comment)
			}
			return table.Flush()
		},
	}
}

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review progress counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.AdminStats(ctx)
			if err != nil {
				return err
			}
			return opts.printJSON(resp)
		},
	}
}

func newLeasesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leases",
		Short: "List active review leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := c.ListLeases(ctx)
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(table, "DOCUMENT\tHOLDER\tEXPIRES AT")
			for _, lease := range resp.Items {
				fmt.Fprintf(table, "%s\t%s\t%s\n", lease.DocumentID, lease.HolderID, lease.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return table.Flush()
		},
	}
}

func newConfigCommand(opts *options) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect service configuration",
	}
	var file string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved service configuration (secrets redacted)",
		Long: `Resolve the api/worker configuration the same way the service does
(defaults, then --file or CONFIG_FILE, then environment) and print it as YAML.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = os.Getenv("CONFIG_FILE")
			}
			resolved, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if resolved.ConfigFile != "" {
				fmt.Fprintf(opts.stderr, "Configuration file: %s\n", resolved.ConfigFile)
			}
			out, err := yaml.Marshal(resolved.Redacted())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = opts.stdout.Write(out)
			return err
		},
	}
	show.Flags().StringVar(&file, "file", "", "service config file (default: $CONFIG_FILE)")
	cfg.AddCommand(show)
	return cfg
}

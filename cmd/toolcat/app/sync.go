package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/catalogsync"
	"github.com/radutopala/toolcat/internal/descriptor"
)

func newSyncCmd() *cobra.Command {
	var (
		dryRun bool
		noMCP  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "sync [patterns...]",
		Short: "Load tool descriptors and upsert them into the catalog",
		Long: `Load tool descriptors from files (globs or directories of .json, .jsonc,
.yaml and .yml files) and from the configured MCP servers, embed them and
upsert them into the catalog. Exits 0 only if every descriptor succeeded.

With --dry-run everything runs except the writes; the records that would be
written are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, dryRun, noMCP, format)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and embed without writing to the catalog")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Skip the MCP servers listed in the configuration")
	cmd.Flags().IntP("concurrency", "c", 0, "Records processed at once")
	cmd.Flags().StringVar(&format, "format", FormatText, "Output format (json or text)")

	return cmd
}

func runSync(cmd *cobra.Command, patterns []string, dryRun, noMCP bool, format string) error {
	ctx := cmd.Context()

	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	useMCP := !noMCP && len(e.cfg.MCPServers) > 0
	if len(patterns) == 0 && !useMCP {
		return errors.New("no descriptor sources: pass file patterns or configure mcp_servers")
	}

	provider, err := e.provider(ctx)
	if err != nil {
		return err
	}

	// Real runs need the store before anything is processed; dry runs never touch it.
	var store catalog.Store
	if !dryRun {
		store, err = e.store(ctx)
		if err != nil {
			e.logger.Error("Catalog store unreachable, aborting sync", "error", err)
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			return &ExitError{Code: 1}
		}
	}

	loader := descriptor.NewLoader(e.logger)
	res := &descriptor.Result{}
	if len(patterns) > 0 {
		res.Merge(loader.LoadFiles(ctx, patterns...))
	}
	if useMCP {
		res.Merge(loader.LoadMCP(ctx, e.cfg.MCPServers))
	}

	synchronizer, err := catalogsync.New(provider, store, e.logger, catalogsync.WithConcurrency(e.cfg.Sync.Concurrency))
	if err != nil {
		return err
	}

	summary := synchronizer.Run(ctx, res, dryRun)

	out := cmd.OutOrStdout()
	switch format {
	case FormatJSON:
		if err := printJSON(out, summary); err != nil {
			return err
		}
	default:
		if err := printSyncText(out, cmd.ErrOrStderr(), summary); err != nil {
			return err
		}
	}

	if code := summary.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func printSyncText(out, errOut io.Writer, summary *catalogsync.Summary) error {
	if summary.DryRun && len(summary.Results) > 0 {
		fmt.Fprintln(out, "Dry run, nothing was written. Records that would be written:")
		if err := renderPreview(out, summary.Results); err != nil {
			return err
		}
	}

	for _, f := range summary.Failures {
		fmt.Fprintf(errOut, "FAILED %s: %v\n", failureLabel(f), f.Err)
	}

	fmt.Fprintf(out, "%d/%d succeeded\n", summary.Succeeded, summary.Attempted)
	return nil
}

func failureLabel(f catalogsync.Failure) string {
	switch {
	case f.Source != "" && f.Key != "":
		return fmt.Sprintf("%s (%s)", f.Source, f.Key)
	case f.Key != "":
		return f.Key
	default:
		return f.Source
	}
}

func renderPreview(w io.Writer, results []catalogsync.RecordResult) error {
	table := tablewriter.NewWriter(w)
	table.Options(tablewriter.WithHeader([]string{"Key", "Name", "Platform", "Tags", "Dim", "Embedding", "Action"}))

	for _, r := range results {
		if err := table.Append([]string{
			r.Key,
			r.Name,
			joinOrDash(r.Platform),
			joinOrDash(r.Tags),
			fmt.Sprint(r.Dimension),
			r.Provider,
			r.Action,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

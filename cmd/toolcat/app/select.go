package app

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/selector"
)

func newSelectCmd() *cobra.Command {
	var (
		platforms []string
		k         int
		format    string
	)

	cmd := &cobra.Command{
		Use:   "select <intent>",
		Short: "Find the tools most relevant to an intent",
		Long: `Embed the intent with the configured provider and return the k closest
catalogued tools that run on any of the given platforms. Tools without a
platform always qualify.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !cmd.Flags().Changed("k") {
				k = e.cfg.Select.DefaultK
			}

			provider, err := e.provider(ctx)
			if err != nil {
				return err
			}
			store, err := e.store(ctx)
			if err != nil {
				return err
			}

			sel, err := selector.New(provider, store, e.logger)
			if err != nil {
				return err
			}

			matches, err := sel.SelectMatches(ctx, args[0], platforms, k)
			if err != nil {
				return err
			}

			if format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), matchesJSON(matches))
			}
			return renderMatches(cmd.OutOrStdout(), matches)
		},
	}

	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Platform filter (comma separated)")
	cmd.Flags().IntVarP(&k, "k", "k", 5, "Maximum number of tools to return")
	cmd.Flags().StringVar(&format, "format", FormatText, "Output format (json or text)")

	return cmd
}

type matchOutput struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	ShortDesc string         `json:"short_desc"`
	Platform  []string       `json:"platform"`
	Tags      []string       `json:"tags"`
	Meta      map[string]any `json:"meta"`
	Distance  float64        `json:"distance"`
}

func matchesJSON(matches []catalog.Match) []matchOutput {
	out := make([]matchOutput, len(matches))
	for i, m := range matches {
		out[i] = matchOutput{
			Key:       m.Record.Key,
			Name:      m.Record.Name,
			ShortDesc: m.Record.ShortDesc,
			Platform:  m.Record.Platform,
			Tags:      m.Record.Tags,
			Meta:      m.Record.Meta,
			Distance:  m.Distance,
		}
	}
	return out
}

func renderMatches(w io.Writer, matches []catalog.Match) error {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matching tools found.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Options(tablewriter.WithHeader([]string{"Key", "Name", "Description", "Platform", "Distance"}))

	for _, m := range matches {
		if err := table.Append([]string{
			m.Record.Key,
			m.Record.Name,
			m.Record.ShortDesc,
			joinOrDash(m.Record.Platform),
			fmt.Sprintf("%.4f", m.Distance),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/tools"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one catalogued tool as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			store, err := e.store(ctx)
			if err != nil {
				return err
			}

			rec, err := store.Get(ctx, args[0])
			if errors.Is(err, catalog.ErrNotFound) {
				return notFoundError(ctx, store, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func notFoundError(ctx context.Context, store catalog.Store, key string) error {
	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("tool %q not found", key)
	}
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.Key
	}
	if suggestions := tools.SuggestKeys(key, keys, 3); len(suggestions) > 0 {
		return fmt.Errorf("tool %q not found, did you mean %s?", key, strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("tool %q not found", key)
}

package app

import (
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/radutopala/toolcat/internal/mcp"
	"github.com/radutopala/toolcat/internal/selector"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve catalog queries to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

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

			// Get server name and version from environment or use defaults
			serverName := os.Getenv("MCP_SERVER_NAME")
			if serverName == "" {
				serverName = "toolcat"
			}
			serverVersion := os.Getenv("MCP_SERVER_VERSION")
			if serverVersion == "" {
				serverVersion = "0.1.0"
			}

			server := mcp.NewCatalogServer(serverName, serverVersion, sel, store, e.cfg.Select.DefaultK, e.logger)

			e.logger.Info("Starting toolcat MCP server over stdio", "name", serverName, "version", serverVersion, "store", e.cfg.Store)
			if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
				e.logger.Error("toolcat MCP server failed", "error", err)
				return err
			}
			e.logger.Info("toolcat MCP server finished")
			return nil
		},
	}
}

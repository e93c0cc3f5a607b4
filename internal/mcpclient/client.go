// Package mcpclient lists tools exposed by external MCP servers so they can be
// catalogued alongside file-based descriptors.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes an external MCP server.
// Supports multiple transport types:
// - Command transport (stdio): Provide "command" field
// - HTTP transport (Streamable HTTP): Provide "url" field
type ServerConfig struct {
	Command  string            `json:"command,omitempty" mapstructure:"command"`   // Command to execute (for stdio transport)
	Args     []string          `json:"args,omitempty" mapstructure:"args"`         // Command arguments
	URL      string            `json:"url,omitempty" mapstructure:"url"`           // HTTP URL (Streamable HTTP)
	Env      map[string]string `json:"env,omitempty" mapstructure:"env"`           // Environment variables (stdio only)
	Category string            `json:"category,omitempty" mapstructure:"category"` // Becomes the tag of every listed tool
	Platform []string          `json:"platform,omitempty" mapstructure:"platform"` // Platforms the server's tools run on
	Enabled  bool              `json:"enabled" mapstructure:"enabled"`             // Whether to load this server
}

// Tool is a tool advertised by an external server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Client is a connection to one external MCP server.
type Client struct {
	name    string
	session *mcp.ClientSession
	logger  *slog.Logger
}

// Transport builds the transport for config: Streamable HTTP when a URL is
// set, stdio otherwise.
func Transport(config ServerConfig) (mcp.Transport, string, error) {
	if config.URL != "" {
		return &mcp.StreamableClientTransport{
			Endpoint:   config.URL,
			MaxRetries: 5,
		}, "streamable-http", nil
	}

	if config.Command != "" {
		cmd := exec.Command(config.Command, config.Args...)
		if len(config.Env) > 0 {
			env := os.Environ()
			for k, v := range config.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, "stdio", nil
	}

	return nil, "", errors.New("no transport configured: must provide either 'command' or 'url'")
}

// New connects to the server described by config.
func New(ctx context.Context, name string, config ServerConfig, logger *slog.Logger) (*Client, error) {
	transport, transportType, err := Transport(config)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to external MCP server", "name", name, "transport", transportType)
	return Connect(ctx, name, transport, logger)
}

// Connect opens a session over an already built transport.
func Connect(ctx context.Context, name string, transport mcp.Transport, logger *slog.Logger) (*Client, error) {
	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    "toolcat",
			Version: "1.0.0",
		},
		nil,
	)

	// Connect also runs the initialize handshake
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server %s: %w", name, err)
	}

	logger.Info("Connected to external MCP server", "name", name)

	return &Client{
		name:    name,
		session: session,
		logger:  logger,
	}, nil
}

// ListTools retrieves all tools from the external MCP server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	params := &mcp.ListToolsParams{}
	for {
		result, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list failed: %w", err)
		}

		for _, t := range result.Tools {
			schema, _ := t.InputSchema.(map[string]any)
			if schema == nil {
				schema = map[string]any{}
			}
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			})
		}

		if result.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: result.NextCursor}
	}

	c.logger.Info("Listed tools from external MCP server", "name", c.name, "count", len(tools))
	return tools, nil
}

// Close terminates the connection to the external MCP server.
func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		c.logger.Warn("External MCP server close error", "name", c.name, "error", err)
		return err
	}

	c.logger.Info("Closed external MCP server", "name", c.name)
	return nil
}

//go:build integration
// +build integration

package integration

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/radutopala/toolcat/internal/catalog/memory"
	"github.com/radutopala/toolcat/internal/catalogsync"
	"github.com/radutopala/toolcat/internal/descriptor"
	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/mcpclient"
	"github.com/radutopala/toolcat/internal/selector"
)

// HTTPIntegrationTestSuite catalogues tools served over Streamable HTTP
type HTTPIntegrationTestSuite struct {
	suite.Suite
	server    *httptest.Server
	mcpServer *mcp.Server
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// SetupSuite starts the HTTP test server
func (s *HTTPIntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    "test-http-server",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Logger: s.logger,
		},
	)

	type GreetInput struct {
		Name string `json:"name" jsonschema:"Name to greet"`
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "greet",
		Description: "Say hello to someone",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input GreetInput) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "Hello, " + input.Name + "!"},
			},
		}, nil, nil
	})

	type ListInput struct {
		Path string `json:"path" jsonschema:"Directory to list"`
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_directory",
		Description: "List the files in a directory",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{}, nil, nil
	})

	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	s.server = httptest.NewServer(handler)
	s.T().Logf("Test HTTP server started at: %s", s.server.URL)
}

// TearDownSuite stops the HTTP test server
func (s *HTTPIntegrationTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// TestStreamableHTTPListTools tests listing tools via HTTP
func (s *HTTPIntegrationTestSuite) TestStreamableHTTPListTools() {
	client, err := mcpclient.New(s.ctx, "remote", mcpclient.ServerConfig{URL: s.server.URL, Enabled: true}, s.logger)
	require.NoError(s.T(), err, "Failed to create MCP client")
	defer client.Close()

	listed, err := client.ListTools(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), listed, 2)

	names := []string{listed[0].Name, listed[1].Name}
	require.ElementsMatch(s.T(), []string{"greet", "list_directory"}, names)
}

// TestLoadAndSelect catalogues the remote tools and queries them
func (s *HTTPIntegrationTestSuite) TestLoadAndSelect() {
	loader := descriptor.NewLoader(s.logger)
	res := loader.LoadMCP(s.ctx, map[string]mcpclient.ServerConfig{
		"remote": {URL: s.server.URL, Category: "demo", Platform: []string{"linux"}, Enabled: true},
	})
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 2)

	provider := embedding.NewHashingProvider(64)
	store := memory.New(64, s.logger)
	defer store.Close()

	sync, err := catalogsync.New(provider, store, s.logger)
	require.NoError(s.T(), err)
	summary := sync.Run(s.ctx, res, false)
	require.Zero(s.T(), summary.ExitCode())

	sel, err := selector.New(provider, store, s.logger)
	require.NoError(s.T(), err)

	got, err := sel.SelectTopK(s.ctx, "list files in a directory", []string{"linux"}, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	require.Equal(s.T(), "remote.list_directory", got[0].Key)
	require.Equal(s.T(), []string{"demo"}, got[0].Tags)
	require.Equal(s.T(), "remote", got[0].Meta["server"])
}

// TestStreamableHTTPInvalidEndpoint reports an unreachable server as one failure
func (s *HTTPIntegrationTestSuite) TestStreamableHTTPInvalidEndpoint() {
	loader := descriptor.NewLoader(s.logger)
	res := loader.LoadMCP(s.ctx, map[string]mcpclient.ServerConfig{
		"dead":   {URL: "http://127.0.0.1:1/mcp", Enabled: true},
		"remote": {URL: s.server.URL, Enabled: true},
	})
	require.Len(s.T(), res.Failures, 1)
	require.Equal(s.T(), "mcp:dead", res.Failures[0].Source)
	require.Len(s.T(), res.Entries, 2)
}

func TestHTTPIntegrationSuite(t *testing.T) {
	suite.Run(t, new(HTTPIntegrationTestSuite))
}

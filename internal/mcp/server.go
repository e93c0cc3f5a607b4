package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/selector"
	"github.com/radutopala/toolcat/internal/tools"
)

// Detail levels accepted by tool_select.
const (
	DetailSummary  = "summary"
	DetailDetailed = "detailed"
)

// CatalogServer exposes catalog queries to MCP clients such as planners.
type CatalogServer struct {
	server   *mcp.Server
	selector *selector.Selector
	store    catalog.Store
	defaultK int
	logger   *slog.Logger
}

// NewCatalogServer creates the server and registers its tools.
func NewCatalogServer(name, version string, sel *selector.Selector, store catalog.Store, defaultK int, logger *slog.Logger) *CatalogServer {
	s := &CatalogServer{
		selector: sel,
		store:    store,
		defaultK: defaultK,
		logger:   logger,
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    name,
			Version: version,
		},
		nil,
	)
	s.registerTools(server)
	s.server = server

	return s
}

// Run starts the MCP server with the given transport
func (s *CatalogServer) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *CatalogServer) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "tool_select",
		Description: "Find the catalogued tools most relevant to a natural language intent (e.g., 'list running containers', 'search files for text'). Optionally restrict to platforms; tools without a platform always qualify. Returns at most k tools, closest first.",
	}, s.handleToolSelect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tool_get",
		Description: "Fetch one catalogued tool by key, including its metadata.",
	}, s.handleToolGet)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tool_report_usage",
		Description: "Record that a catalogued tool was executed. Selection never counts as usage.",
	}, s.handleToolReportUsage)
}

// ToolSelectInput defines the input for tool_select
type ToolSelectInput struct {
	Intent      string   `json:"intent" jsonschema:"What the caller wants to accomplish, in natural language"`
	Platform    []string `json:"platform,omitempty" jsonschema:"Optional platform filter (e.g. ['linux', 'docker'])"`
	K           int      `json:"k,omitempty" jsonschema:"Maximum number of tools to return. Default comes from configuration"`
	DetailLevel string   `json:"detail_level,omitempty" jsonschema:"'summary' (key, name, short_desc, platform, tags) or 'detailed' (adds meta and distance). Default: 'summary'"`
}

// SelectedTool is one entry of a tool_select response.
type SelectedTool struct {
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	ShortDesc string     `json:"short_desc"`
	Platform  []string   `json:"platform"`
	Tags      []string   `json:"tags"`
	Meta      tools.Meta `json:"meta,omitempty"`
	Distance  *float64   `json:"distance,omitempty"`
}

func (s *CatalogServer) handleToolSelect(ctx context.Context, req *mcp.CallToolRequest, input ToolSelectInput) (*mcp.CallToolResult, any, error) {
	k := input.K
	if k == 0 {
		k = s.defaultK
	}
	detailLevel := input.DetailLevel
	if detailLevel == "" {
		detailLevel = DetailSummary
	}

	s.logger.Info("Tool select request", "intent", input.Intent, "platform", input.Platform, "k", k, "detail_level", detailLevel)

	matches, err := s.selector.SelectMatches(ctx, input.Intent, input.Platform, k)
	if err != nil {
		s.logger.Error("Tool select failed", "error", err)
		return errorResult(err), nil, nil
	}

	selected := make([]SelectedTool, len(matches))
	for i, m := range matches {
		selected[i] = SelectedTool{
			Key:       m.Record.Key,
			Name:      m.Record.Name,
			ShortDesc: m.Record.ShortDesc,
			Platform:  m.Record.Platform,
			Tags:      m.Record.Tags,
		}
		if detailLevel == DetailDetailed {
			distance := m.Distance
			selected[i].Meta = m.Record.Meta
			selected[i].Distance = &distance
		}
	}

	s.logger.Info("Tool select response", "returned", len(selected))

	return jsonResult(map[string]any{
		"returned_count": len(selected),
		"k":              k,
		"tools":          selected,
	}), nil, nil
}

// ToolGetInput defines the input for tool_get
type ToolGetInput struct {
	Key string `json:"key" jsonschema:"Catalog key of the tool (e.g. 'docker.ps')"`
}

func (s *CatalogServer) handleToolGet(ctx context.Context, req *mcp.CallToolRequest, input ToolGetInput) (*mcp.CallToolResult, any, error) {
	rec, err := s.store.Get(ctx, input.Key)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return errorResult(s.notFound(ctx, input.Key)), nil, nil
		}
		s.logger.Error("Tool get failed", "key", input.Key, "error", err)
		return errorResult(err), nil, nil
	}

	return jsonResult(map[string]any{
		"key":         rec.Key,
		"name":        rec.Name,
		"short_desc":  rec.ShortDesc,
		"platform":    rec.Platform,
		"tags":        rec.Tags,
		"meta":        rec.Meta,
		"usage_count": rec.UsageCount,
		"created_at":  rec.CreatedAt,
		"updated_at":  rec.UpdatedAt,
	}), nil, nil
}

// ToolReportUsageInput defines the input for tool_report_usage
type ToolReportUsageInput struct {
	Key string `json:"key" jsonschema:"Catalog key of the executed tool"`
}

func (s *CatalogServer) handleToolReportUsage(ctx context.Context, req *mcp.CallToolRequest, input ToolReportUsageInput) (*mcp.CallToolResult, any, error) {
	if err := s.store.IncrementUsage(ctx, input.Key); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return errorResult(fmt.Errorf("tool not found: %s", input.Key)), nil, nil
		}
		s.logger.Error("Usage report failed", "key", input.Key, "error", err)
		return errorResult(err), nil, nil
	}

	s.logger.Info("Tool usage recorded", "key", input.Key)
	return jsonResult(map[string]any{"key": input.Key, "recorded": true}), nil, nil
}

// notFound builds a not-found error that names close catalog keys, if any.
func (s *CatalogServer) notFound(ctx context.Context, key string) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("tool not found: %s", key)
	}
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	if suggestions := tools.SuggestKeys(key, keys, 3); len(suggestions) > 0 {
		return fmt.Errorf("tool not found: %s (did you mean: %s?)", key, strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("tool not found: %s", key)
}

func jsonResult(v any) *mcp.CallToolResult {
	resultJSON, _ := json.Marshal(v)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(resultJSON)},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}

// Package descriptor discovers tool descriptors and turns them into validated
// catalog records. A bad source is reported and skipped; it never stops
// discovery of the others.
package descriptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/radutopala/toolcat/internal/mcpclient"
	"github.com/radutopala/toolcat/internal/tools"
)

// Extensions lists the file extensions picked up when walking a directory.
var Extensions = []string{".json", ".jsonc", ".yaml", ".yml"}

// Descriptor is the on-disk shape of a tool descriptor.
type Descriptor struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	ShortDesc string         `json:"short_desc"`
	Platform  []string       `json:"platform"`
	Tags      []string       `json:"tags"`
	Meta      map[string]any `json:"meta"`
}

// Entry is a validated record and the source it came from.
type Entry struct {
	Source string
	Record *tools.Record
}

// Result collects the records and failures of one or more loads.
type Result struct {
	Entries  []Entry
	Failures []Failure

	seen map[string]string // key -> source of first occurrence
}

// Records returns the loaded records in load order.
func (r *Result) Records() []*tools.Record {
	out := make([]*tools.Record, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Record
	}
	return out
}

// Merge appends other to r, applying the duplicate-key check across both.
func (r *Result) Merge(other *Result) {
	for _, e := range other.Entries {
		r.add(e.Source, e.Record)
	}
	r.Failures = append(r.Failures, other.Failures...)
}

func (r *Result) add(source string, rec *tools.Record) {
	if r.seen == nil {
		r.seen = make(map[string]string)
	}
	if first, ok := r.seen[rec.Key]; ok {
		r.fail(source, &ValidationError{
			Source: source,
			Field:  "key",
			Reason: fmt.Sprintf("duplicate key %q, first defined in %s", rec.Key, first),
		})
		return
	}
	r.seen[rec.Key] = source
	r.Entries = append(r.Entries, Entry{Source: source, Record: rec})
}

func (r *Result) fail(source string, err error) {
	r.Failures = append(r.Failures, Failure{Source: source, Err: err})
}

// ToolLister is the part of an MCP client the loader needs.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcpclient.Tool, error)
	Close() error
}

var _ ToolLister = (*mcpclient.Client)(nil)

// Dialer connects to an external MCP server.
type Dialer func(ctx context.Context, name string, config mcpclient.ServerConfig) (ToolLister, error)

// Loader turns descriptor sources into records.
type Loader struct {
	logger *slog.Logger
	dial   Dialer
}

// Option configures a Loader.
type Option func(*Loader)

// WithDialer replaces the function used to reach MCP servers.
func WithDialer(dial Dialer) Option {
	return func(l *Loader) {
		l.dial = dial
	}
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{logger: logger}
	l.dial = func(ctx context.Context, name string, config mcpclient.ServerConfig) (ToolLister, error) {
		return mcpclient.New(ctx, name, config, l.logger)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFiles discovers descriptor files matching patterns and loads them.
// A pattern is a directory (walked recursively) or a filepath.Glob pattern.
func (l *Loader) LoadFiles(ctx context.Context, patterns ...string) *Result {
	res := &Result{}

	files := make(map[string]struct{})
	for _, pattern := range patterns {
		found, err := discover(pattern)
		if err != nil {
			l.logger.Warn("Descriptor discovery failed", "pattern", pattern, "error", err)
			res.fail(pattern, err)
			continue
		}
		for _, f := range found {
			files[f] = struct{}{}
		}
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			res.fail(path, ctx.Err())
			continue
		}
		l.loadFile(path, res)
	}

	l.logger.Info("Loaded descriptor files",
		"files", len(paths),
		"records", len(res.Entries),
		"failures", len(res.Failures),
	)
	return res
}

// LoadMCP lists the tools of every enabled server and converts them into
// records keyed "<server>.<tool>".
func (l *Loader) LoadMCP(ctx context.Context, servers map[string]mcpclient.ServerConfig) *Result {
	res := &Result{}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		config := servers[name]
		source := "mcp:" + name
		if !config.Enabled {
			l.logger.Info("Skipping disabled external server", "name", name)
			continue
		}

		listed, err := l.listServerTools(ctx, name, config)
		if err != nil {
			l.logger.Error("Failed to list external server tools", "name", name, "error", err)
			res.fail(source, err)
			continue
		}

		for _, tool := range listed {
			var tags []string
			if config.Category != "" {
				tags = []string{config.Category}
			}
			d := Descriptor{
				Key:       name + "." + tool.Name,
				Name:      tool.Name,
				ShortDesc: tool.Description,
				Platform:  config.Platform,
				Tags:      tags,
				Meta: map[string]any{
					"server":       name,
					"input_schema": tool.InputSchema,
				},
			}
			l.accept(source+"#"+tool.Name, d, res)
		}
	}

	return res
}

func (l *Loader) listServerTools(ctx context.Context, name string, config mcpclient.ServerConfig) ([]mcpclient.Tool, error) {
	client, err := l.dial(ctx, name, config)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	return client.ListTools(ctx)
}

func (l *Loader) loadFile(path string, res *Result) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.reject(res, path, &ParseError{Source: path, Err: fmt.Errorf("reading file: %w", err)})
		return
	}

	doc, err := decode(path, data)
	if err != nil {
		l.reject(res, path, &ParseError{Source: path, Err: err})
		return
	}

	switch v := doc.(type) {
	case []any:
		for i, item := range v {
			l.loadItem(fmt.Sprintf("%s#%d", path, i), item, res)
		}
	case map[string]any:
		l.loadItem(path, v, res)
	default:
		l.reject(res, path, &ParseError{Source: path, Err: errors.New("expected a descriptor object or a list of descriptors")})
	}
}

func (l *Loader) loadItem(source string, item any, res *Result) {
	d, err := Parse(item)
	if err != nil {
		l.reject(res, source, &ParseError{Source: source, Err: err})
		return
	}
	l.accept(source, d, res)
}

func (l *Loader) accept(source string, d Descriptor, res *Result) {
	rec, err := Build(source, d)
	if err != nil {
		l.reject(res, source, err)
		return
	}

	before := len(res.Failures)
	res.add(source, rec)
	if len(res.Failures) > before {
		l.logger.Warn("Skipping descriptor", "source", source, "error", res.Failures[len(res.Failures)-1].Err)
	}
}

func (l *Loader) reject(res *Result, source string, err error) {
	l.logger.Warn("Skipping descriptor", "source", source, "error", err)
	res.fail(source, err)
}

// Parse type-checks a decoded JSON value and converts it into a Descriptor.
func Parse(item any) (Descriptor, error) {
	var d Descriptor
	if _, ok := item.(map[string]any); !ok {
		return d, errors.New("descriptor must be an object")
	}
	if err := checkTypes(item); err != nil {
		return d, err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return d, fmt.Errorf("re-encoding descriptor: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decoding descriptor: %w", err)
	}
	return d, nil
}

// Build validates required fields and applies defaults, producing a record
// ready for embedding.
func Build(source string, d Descriptor) (*tools.Record, error) {
	key := strings.TrimSpace(d.Key)
	name := strings.TrimSpace(d.Name)

	// short_desc is stored as written; trimming only decides blankness.
	for _, f := range []struct{ field, value string }{
		{"key", key},
		{"name", name},
		{"short_desc", strings.TrimSpace(d.ShortDesc)},
	} {
		if f.value == "" {
			return nil, &ValidationError{Source: source, Field: f.field, Reason: "required field is missing or blank"}
		}
	}

	meta := tools.Meta(d.Meta)
	if meta == nil {
		meta = tools.Meta{}
	}

	return &tools.Record{
		Key:       key,
		Name:      name,
		ShortDesc: tools.TruncateShortDesc(d.ShortDesc),
		Platform:  tools.NormalizeSet(d.Platform),
		Tags:      tools.NormalizeSet(d.Tags),
		Meta:      meta,
	}, nil
}

// decode converts JSON, JSONC or YAML bytes into plain JSON values.
func decode(path string, data []byte) (any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
		// Round-trip through JSON so YAML and JSON sources share one shape.
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("converting yaml: %w", err)
		}
		data = encoded
	default:
		data = jsonc.ToJSON(data)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("parsing json: unexpected data after top-level value")
	}
	return doc, nil
}

// discover expands a pattern into descriptor file paths.
func discover(pattern string) ([]string, error) {
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		return walk(pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, errors.New("no descriptor files match")
	}

	var out []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.IsDir() {
			files, err := walk(m)
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func walk(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(path))) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return out, nil
}

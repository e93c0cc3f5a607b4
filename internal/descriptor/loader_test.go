package descriptor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/radutopala/toolcat/internal/mcpclient"
	"github.com/radutopala/toolcat/internal/tools"
)

type LoaderTestSuite struct {
	suite.Suite
	ctx    context.Context
	dir    string
	loader *Loader
}

func (s *LoaderTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.loader = NewLoader(logger)
}

func (s *LoaderTestSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	require.NoError(s.T(), os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *LoaderTestSuite) TestLoadJSONObject() {
	path := s.write("grep.json", `{
		"key": "linux.grep",
		"name": "grep",
		"short_desc": "Search text with patterns",
		"platform": ["linux", "linux", " bsd "],
		"tags": ["search"],
		"meta": {"command": "grep", "timeout": 30}
	}`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 1)

	entry := res.Entries[0]
	require.Equal(s.T(), path, entry.Source)
	require.Equal(s.T(), "linux.grep", entry.Record.Key)
	require.Equal(s.T(), []string{"bsd", "linux"}, entry.Record.Platform)
	require.Equal(s.T(), tools.Meta{"command": "grep", "timeout": 30.0}, entry.Record.Meta)
}

func (s *LoaderTestSuite) TestLoadJSONCWithComments() {
	path := s.write("tools.jsonc", `[
		// process listing
		{"key": "docker.ps", "name": "docker ps", "short_desc": "List containers",},
		/* logs */
		{"key": "docker.logs", "name": "docker logs", "short_desc": "Fetch container logs"},
	]`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 2)
	require.Equal(s.T(), path+"#0", res.Entries[0].Source)
	require.Equal(s.T(), path+"#1", res.Entries[1].Source)
}

func (s *LoaderTestSuite) TestLoadYAMLList() {
	path := s.write("windows.yaml", `
- key: windows.netsh
  name: netsh
  short_desc: Configure network settings
  platform: [windows]
  meta:
    command: netsh
    args: [interface, show]
- key: windows.tasklist
  name: tasklist
  short_desc: List running processes
  platform:
`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 2)

	netsh := res.Entries[0].Record
	require.Equal(s.T(), []any{"interface", "show"}, netsh.Meta["args"])

	tasklist := res.Entries[1].Record
	require.Empty(s.T(), tasklist.Platform)
	require.NotNil(s.T(), tasklist.Platform)
}

func (s *LoaderTestSuite) TestDefaults() {
	path := s.write("min.json", `{"key": "any.echo", "name": "echo", "short_desc": "Print text"}`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Len(s.T(), res.Entries, 1)

	rec := res.Entries[0].Record
	require.Equal(s.T(), []string{}, rec.Platform)
	require.Equal(s.T(), []string{}, rec.Tags)
	require.Equal(s.T(), tools.Meta{}, rec.Meta)
}

func (s *LoaderTestSuite) TestShortDescTruncation() {
	long := strings.Repeat("a", 200)
	short := strings.Repeat("b", 100)
	s.write("long.json", `{"key": "t.long", "name": "long", "short_desc": "`+long+`"}`)
	s.write("short.json", `{"key": "t.short", "name": "short", "short_desc": "`+short+`"}`)

	res := s.loader.LoadFiles(s.ctx, s.dir)
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 2)

	byKey := map[string]*tools.Record{}
	for _, rec := range res.Records() {
		byKey[rec.Key] = rec
	}
	require.Len(s.T(), byKey["t.long"].ShortDesc, tools.MaxShortDescLength)
	require.Equal(s.T(), short, byKey["t.short"].ShortDesc)
}

func (s *LoaderTestSuite) TestShortDescStoredAsWritten() {
	padded := "  List running containers \n"
	rec, err := Build("padded.json", Descriptor{Key: " docker.ps ", Name: "docker ps", ShortDesc: padded})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "docker.ps", rec.Key)
	require.Equal(s.T(), padded, rec.ShortDesc)

	long := " " + strings.Repeat("c", 200)
	rec, err = Build("long.json", Descriptor{Key: "t.long", Name: "long", ShortDesc: long})
	require.NoError(s.T(), err)
	require.Equal(s.T(), long[:tools.MaxShortDescLength], rec.ShortDesc)

	_, err = Build("blank.json", Descriptor{Key: "t.blank", Name: "blank", ShortDesc: " \t "})
	var verr *ValidationError
	require.ErrorAs(s.T(), err, &verr)
	require.Equal(s.T(), "short_desc", verr.Field)
}

func (s *LoaderTestSuite) TestMissingKeyIsolated() {
	s.write("a.json", `{"key": "linux.grep", "name": "grep", "short_desc": "Search text"}`)
	s.write("b.json", `{"name": "nokey", "short_desc": "Missing key"}`)
	s.write("c.json", `{"key": "linux.ps", "name": "ps", "short_desc": "List processes"}`)

	res := s.loader.LoadFiles(s.ctx, s.dir)
	require.Len(s.T(), res.Entries, 2)
	require.Len(s.T(), res.Failures, 1)

	var verr *ValidationError
	require.ErrorAs(s.T(), res.Failures[0].Err, &verr)
	require.Equal(s.T(), "key", verr.Field)
	require.Equal(s.T(), filepath.Join(s.dir, "b.json"), res.Failures[0].Source)
}

func (s *LoaderTestSuite) TestBlankRequiredFields() {
	path := s.write("blank.json", `[
		{"key": "a.b", "name": "  ", "short_desc": "desc"},
		{"key": "a.c", "name": "c", "short_desc": ""}
	]`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Empty(s.T(), res.Entries)
	require.Len(s.T(), res.Failures, 2)

	fields := []string{}
	for _, f := range res.Failures {
		var verr *ValidationError
		require.ErrorAs(s.T(), f.Err, &verr)
		fields = append(fields, verr.Field)
	}
	require.Equal(s.T(), []string{"name", "short_desc"}, fields)
}

func (s *LoaderTestSuite) TestParseErrors() {
	s.write("broken.json", `{"key": "x.y", "name":`)
	s.write("types.json", `{"key": "x.z", "name": "z", "short_desc": "d", "platform": "linux"}`)
	s.write("scalar.yaml", `just a string`)
	s.write("ok.yml", "key: x.ok\nname: ok\nshort_desc: fine\n")

	res := s.loader.LoadFiles(s.ctx, s.dir)
	require.Len(s.T(), res.Entries, 1)
	require.Equal(s.T(), "x.ok", res.Entries[0].Record.Key)
	require.Len(s.T(), res.Failures, 3)

	for _, f := range res.Failures {
		var perr *ParseError
		require.ErrorAs(s.T(), f.Err, &perr, "source %s", f.Source)
	}
}

func (s *LoaderTestSuite) TestListElementMustBeObject() {
	path := s.write("mixed.json", `[{"key": "a.b", "name": "b", "short_desc": "d"}, 42]`)

	res := s.loader.LoadFiles(s.ctx, path)
	require.Len(s.T(), res.Entries, 1)
	require.Len(s.T(), res.Failures, 1)
	require.Equal(s.T(), path+"#1", res.Failures[0].Source)
}

func (s *LoaderTestSuite) TestDuplicateKeyRejected() {
	first := s.write("1.json", `{"key": "dup.tool", "name": "first", "short_desc": "First"}`)
	second := s.write("2.json", `{"key": "dup.tool", "name": "second", "short_desc": "Second"}`)

	res := s.loader.LoadFiles(s.ctx, s.dir)
	require.Len(s.T(), res.Entries, 1)
	require.Equal(s.T(), "first", res.Entries[0].Record.Name)

	require.Len(s.T(), res.Failures, 1)
	require.Equal(s.T(), second, res.Failures[0].Source)
	require.Contains(s.T(), res.Failures[0].Err.Error(), first)
}

func (s *LoaderTestSuite) TestDiscovery() {
	s.write("nested/deep/a.json", `{"key": "n.a", "name": "a", "short_desc": "A"}`)
	s.write("nested/b.yml", "key: n.b\nname: b\nshort_desc: B\n")
	s.write("nested/readme.txt", "not a descriptor")
	s.write("top.json", `{"key": "t.top", "name": "top", "short_desc": "Top"}`)

	res := s.loader.LoadFiles(s.ctx, filepath.Join(s.dir, "nested"))
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 2)

	res = s.loader.LoadFiles(s.ctx, filepath.Join(s.dir, "*.json"))
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 1)
	require.Equal(s.T(), "t.top", res.Entries[0].Record.Key)

	// overlapping patterns load each file once
	res = s.loader.LoadFiles(s.ctx, s.dir, filepath.Join(s.dir, "*.json"))
	require.Empty(s.T(), res.Failures)
	require.Len(s.T(), res.Entries, 3)
}

func (s *LoaderTestSuite) TestNoMatches() {
	res := s.loader.LoadFiles(s.ctx, filepath.Join(s.dir, "*.json"))
	require.Empty(s.T(), res.Entries)
	require.Len(s.T(), res.Failures, 1)
}

func (s *LoaderTestSuite) TestMerge() {
	s.write("a.json", `{"key": "a.one", "name": "one", "short_desc": "One"}`)
	res := s.loader.LoadFiles(s.ctx, s.dir)

	other := &Result{}
	other.add("mcp:srv#one", &tools.Record{Key: "a.one", Name: "one", ShortDesc: "dup"})
	other.add("mcp:srv#two", &tools.Record{Key: "srv.two", Name: "two", ShortDesc: "Two"})

	res.Merge(other)
	require.Len(s.T(), res.Entries, 2)
	require.Len(s.T(), res.Failures, 1)
	require.Equal(s.T(), "mcp:srv#one", res.Failures[0].Source)
}

type fakeLister struct {
	tools  []mcpclient.Tool
	closed bool
}

func (f *fakeLister) ListTools(context.Context) ([]mcpclient.Tool, error) {
	return f.tools, nil
}

func (f *fakeLister) Close() error {
	f.closed = true
	return nil
}

func (s *LoaderTestSuite) TestLoadMCP() {
	github := &fakeLister{tools: []mcpclient.Tool{
		{Name: "create_issue", Description: "Create a GitHub issue", InputSchema: map[string]any{"type": "object"}},
		{Name: "no_desc"},
	}}
	dialed := []string{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	loader := NewLoader(logger, WithDialer(func(_ context.Context, name string, _ mcpclient.ServerConfig) (ToolLister, error) {
		dialed = append(dialed, name)
		if name == "broken" {
			return nil, errors.New("connection refused")
		}
		return github, nil
	}))

	res := loader.LoadMCP(s.ctx, map[string]mcpclient.ServerConfig{
		"github":   {Command: "gh-mcp", Category: "vcs", Platform: []string{"linux"}, Enabled: true},
		"broken":   {URL: "http://localhost:1/mcp", Enabled: true},
		"disabled": {Command: "nope", Enabled: false},
	})

	require.Equal(s.T(), []string{"broken", "github"}, dialed)
	require.True(s.T(), github.closed)

	require.Len(s.T(), res.Entries, 1)
	rec := res.Entries[0].Record
	require.Equal(s.T(), "github.create_issue", rec.Key)
	require.Equal(s.T(), "create_issue", rec.Name)
	require.Equal(s.T(), []string{"linux"}, rec.Platform)
	require.Equal(s.T(), []string{"vcs"}, rec.Tags)
	require.Equal(s.T(), "github", rec.Meta["server"])
	require.Equal(s.T(), "mcp:github#create_issue", res.Entries[0].Source)

	require.Len(s.T(), res.Failures, 2)
	require.Equal(s.T(), "mcp:broken", res.Failures[0].Source)
	var verr *ValidationError
	require.ErrorAs(s.T(), res.Failures[1].Err, &verr)
	require.Equal(s.T(), "short_desc", verr.Field)
}

func TestLoaderTestSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}

package tools

import (
	"slices"
	"strings"
	"time"
)

// MaxShortDescLength is the maximum number of characters kept in a short description.
const MaxShortDescLength = 160

// Meta carries tool-specific invocation detail. It is opaque to the catalog.
type Meta map[string]any

// Record represents a single catalogued tool with its embedding and audit fields.
type Record struct {
	Key            string    `json:"key"`        // Unique dotted identifier (e.g. "linux.grep")
	Name           string    `json:"name"`       // Short display name
	ShortDesc      string    `json:"short_desc"` // Description, at most MaxShortDescLength characters
	Platform       []string  `json:"platform"`   // Platform tags, empty means universal
	Tags           []string  `json:"tags"`       // Informational labels
	Meta           Meta      `json:"meta"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"` // Provider that produced Embedding
	UsageCount     int64     `json:"usage_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EmbeddingText returns the text an embedding is derived from.
func (r *Record) EmbeddingText() string {
	return r.Name + ". " + r.ShortDesc
}

// EligibleFor reports whether the record passes the given platform filter.
// An empty filter or an empty record platform set always matches.
func (r *Record) EligibleFor(platforms []string) bool {
	if len(platforms) == 0 || len(r.Platform) == 0 {
		return true
	}
	for _, p := range platforms {
		if slices.Contains(r.Platform, p) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record. Meta values are copied shallowly.
func (r *Record) Clone() *Record {
	c := *r
	c.Platform = slices.Clone(r.Platform)
	c.Tags = slices.Clone(r.Tags)
	c.Embedding = slices.Clone(r.Embedding)
	c.Meta = make(Meta, len(r.Meta))
	for k, v := range r.Meta {
		c.Meta[k] = v
	}
	return &c
}

// TruncateShortDesc cuts s to MaxShortDescLength characters.
func TruncateShortDesc(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxShortDescLength {
		return s
	}
	return string(runes[:MaxShortDescLength])
}

// NormalizeSet trims, de-duplicates and sorts a tag set. It never returns nil.
func NormalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

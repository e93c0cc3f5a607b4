package descriptor

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// descriptorSchema checks field types only. Missing required fields are
// reported separately as a ValidationError.
const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "key":        {"type": "string"},
    "name":       {"type": "string"},
    "short_desc": {"type": "string"},
    "platform":   {"type": ["array", "null"], "items": {"type": "string"}},
    "tags":       {"type": ["array", "null"], "items": {"type": "string"}},
    "meta":       {"type": ["object", "null"]}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
})

// checkTypes validates a decoded JSON value against the descriptor schema.
func checkTypes(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("invalid descriptor schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each tool's JSON Schema once and reuses it across
// calls. A tool whose schema fails to compile is simply not validated —
// argument shape is still checked implicitly by the handler reading specific
// keys, so a bad schema degrades to "no extra validation" rather than making
// the tool uncallable.
type schemaCache struct {
	mu     sync.Mutex
	compiled map[string]*jsonschema.Schema
	failed   map[string]bool
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: map[string]*jsonschema.Schema{}, failed: map[string]bool{}}
}

func (c *schemaCache) validate(name string, rawSchema json.RawMessage, args map[string]any) error {
	c.mu.Lock()
	schema, ok := c.compiled[name]
	failed := c.failed[name]
	c.mu.Unlock()

	if !ok && !failed {
		compiled, err := jsonschema.CompileString(name, string(rawSchema))
		c.mu.Lock()
		if err != nil {
			c.failed[name] = true
		} else {
			c.compiled[name] = compiled
			schema = compiled
			ok = true
		}
		c.mu.Unlock()
	}
	if !ok {
		return nil
	}

	if err := schema.ValidateInterface(toJSONValue(args)); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return nil
}

// toJSONValue round-trips args through JSON so numeric types match what the
// schema validator expects from a parsed JSON document (float64, not int).
func toJSONValue(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}

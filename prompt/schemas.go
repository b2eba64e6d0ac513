package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas.json
var schemasData []byte

var (
	schemasOnce    sync.Once
	compiled       map[string]*jsonschema.Schema
	schemasLoadErr error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		var raw map[string]any
		if err := json.Unmarshal(schemasData, &raw); err != nil {
			schemasLoadErr = fmt.Errorf("prompt: decode schemas.json: %w", err)
			return
		}
		out := make(map[string]*jsonschema.Schema, len(raw))
		for key, doc := range raw {
			c := jsonschema.NewCompiler()
			resource := key + ".json"
			if err := c.AddResource(resource, doc); err != nil {
				schemasLoadErr = fmt.Errorf("prompt: add schema resource %s: %w", key, err)
				return
			}
			sch, err := c.Compile(resource)
			if err != nil {
				schemasLoadErr = fmt.Errorf("prompt: compile schema %s: %w", key, err)
				return
			}
			out[key] = sch
		}
		compiled = out
	})
	return compiled, schemasLoadErr
}

// ValidateOutput validates a model's JSON reply against the output
// contract for t. ResponseSynthesis carries no schema (it is natural
// language) and always returns nil.
func ValidateOutput(t Type, outputJSON []byte) error {
	if !t.isJSON() {
		return nil
	}
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	sch, ok := schemas[t.String()]
	if !ok {
		return fmt.Errorf("prompt: no schema registered for %s", t)
	}
	var doc any
	if err := json.Unmarshal(outputJSON, &doc); err != nil {
		return fmt.Errorf("prompt: output is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("prompt: output failed schema validation: %w", err)
	}
	return nil
}

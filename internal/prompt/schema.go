package prompt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/stoewer/go-strcase"
)

var schemaCache sync.Map // reflect type name -> string

// Schema returns the JSON schema of v's type, rendered for embedding in a
// prompt. Property names follow the camelCase wire format.
func Schema(v any) (string, error) {
	key := fmt.Sprintf("%T", v)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(string), nil
	}

	r := &jsonschema.Reflector{
		KeyNamer:                  strcase.LowerCamelCase,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.Reflect(v)
	if schema == nil {
		return "", fmt.Errorf("failed to generate schema for %s", key)
	}
	schema.Version = ""

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	out := string(data)
	schemaCache.Store(key, out)
	return out, nil
}

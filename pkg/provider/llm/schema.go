package llm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// BuildSchema reflects the type of v into the flat JSON-schema object the
// chat-completion service expects in its responseFormat field:
//
//	{"type": "object", "properties": {...}, "required": [...]}
//
// Every declared property is listed as required; the service treats absent
// fields as a schema violation, and so does [Provider.ChatStructured] when it
// decodes the reply.
//
// v must be a struct or a pointer to one.
func BuildSchema(v any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("llm: rebuild schema: %w", err)
	}

	// The service accepts only the bare object shape.
	delete(m, "$schema")
	delete(m, "$id")

	props, ok := m["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil, fmt.Errorf("llm: schema for %T has no properties", v)
	}
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	m["required"] = required

	return m, nil
}

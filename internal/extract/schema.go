package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildItemSchema returns a JSON-Schema (draft 2020-12 subset) for one
// extraction element, as a generic map. Validated locally after sanitize;
// only "ID" is required since everything else has a documented 0 fallback.
func BuildItemSchema() map[string]any {
	props := map[string]any{
		"ID":    map[string]any{"type": "integer", "minimum": 1},
		"RNC":   map[string]any{"type": "string", "minLength": 1},
		"NCF":   map[string]any{"type": "string", "minLength": 1},
		"FECHA": map[string]any{"type": "string"},

		"FLAG_DUDOSO":        map[string]any{"type": "boolean"},
		"RAZON_DUDA":         map[string]any{"type": "string"},
		"CONF_BIEN_SERVICIO": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	for _, k := range numericKeys {
		if k == "CONF_BIEN_SERVICIO" {
			continue
		}
		props[k] = map[string]any{"type": "number"}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           props,
		"required":             []string{"ID"},
	}
}

// ValidateAgainstSchema validates "data" against "schemaMap".
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

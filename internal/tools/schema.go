package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateAgainstSchema compiles schema (a JSON Schema document expressed
// as a map literal, as tools register it) and validates args against it,
// using github.com/santhosh-tekuri/jsonschema/v6 in place of a hand-rolled
// validator — the same library goadesign-goa-ai wires for tool-call
// argument validation.
func ValidateAgainstSchema(schema map[string]any, args map[string]any) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	const resourceURL = "mem://tool-schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	argsDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(argsJSON))
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	if err := compiled.Validate(argsDoc); err != nil {
		return err
	}
	return nil
}

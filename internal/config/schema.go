package config

import (
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaURL is the resource name the embedded schema is compiled under.
const schemaURL = "sentimentd.v1.schema.json"

//go:embed sentimentd.v1.schema.json
var embeddedSchema string

// compileSchema compiles the schema at path, or the embedded schema when
// path is empty.
func compileSchema(path string) (*jsonschema.Schema, error) {
	if path != "" {
		return jsonschema.Compile(path)
	}

	schema, err := jsonschema.CompileString(schemaURL, embeddedSchema)
	if err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	return schema, nil
}

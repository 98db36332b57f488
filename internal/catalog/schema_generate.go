//go:build ignore

// Generates the JSON schema for config/boosters/definitions.json so designer
// edits can be validated in CI and editors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"coinfall/client/internal/catalog"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "output path for the JSON schema")
	flag.Parse()

	if outPath == "" {
		log.Fatal("schema_generate: missing -out path")
	}

	schema, err := buildSchema()
	if err != nil {
		log.Fatalf("schema_generate: %v", err)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("schema_generate: marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("schema_generate: create output dir: %v", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("schema_generate: write schema: %v", err)
	}
}

func buildSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	entrySchema := reflector.ReflectFromType(reflect.TypeOf(catalog.Definition{}))
	if entrySchema == nil {
		return nil, fmt.Errorf("failed to reflect definition schema")
	}
	entrySchema.Version = ""
	entrySchema.Title = "Booster Definition"
	entrySchema.Description = "Designer-authored booster offered in the shop."

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Coinfall Booster Catalog",
		Description: "Booster definitions consumed by the Coinfall client shop.",
		Type:        "array",
		Items:       entrySchema,
	}

	return root, nil
}

// Package catalog loads the designer-authored booster definitions the client
// renders in its shop and validates purchases against.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"coinfall/client/internal/game"
)

//go:embed config/boosters/definitions.json
var defaultDefinitions []byte

// Definition models a single purchasable booster as authored in
// config/boosters/definitions.json. The struct is exported so tooling (the
// schema generator) can reflect over the configuration contract.
type Definition struct {
	Type            string  `json:"type" jsonschema:"title=Booster type,pattern=^[a-z0-9_]+$,minLength=1,required,description=Identifier sent to the backend on purchase"`
	Title           string  `json:"title" jsonschema:"title=Display title,minLength=1,required"`
	Description     string  `json:"description,omitempty" jsonschema:"description=Shop copy shown under the title"`
	Target          string  `json:"target" jsonschema:"title=Boosted stat,enum=tap_value,enum=regen_rate,required"`
	Multiplier      float64 `json:"multiplier" jsonschema:"title=Multiplier,minimum=1,required"`
	DurationSeconds int     `json:"durationSeconds" jsonschema:"title=Duration in seconds,minimum=1,required"`
	Price           int64   `json:"price" jsonschema:"title=Price in coins,minimum=0,required"`
}

// Duration returns the booster's active window.
func (d Definition) Duration() time.Duration {
	return time.Duration(d.DurationSeconds) * time.Second
}

// Catalog is an immutable, type-keyed view over the loaded definitions.
type Catalog struct {
	byType  map[string]Definition
	ordered []Definition
}

// Default parses the embedded definitions shipped with the binary.
func Default() (*Catalog, error) {
	return parse(defaultDefinitions)
}

// Load reads definitions from path, falling back to the embedded set when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read booster catalog: %w", err)
	}
	catalog, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

func parse(data []byte) (*Catalog, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var defs []Definition
	if err := decoder.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode booster definitions: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("booster catalog is empty")
	}

	byType := make(map[string]Definition, len(defs))
	for i, def := range defs {
		if err := validate(def); err != nil {
			return nil, fmt.Errorf("definition %d (%q): %w", i, def.Type, err)
		}
		if _, dup := byType[def.Type]; dup {
			return nil, fmt.Errorf("duplicate booster type %q", def.Type)
		}
		byType[def.Type] = def
	}

	ordered := append([]Definition(nil), defs...)
	sort.Slice(ordered, func(i, k int) bool { return ordered[i].Type < ordered[k].Type })
	return &Catalog{byType: byType, ordered: ordered}, nil
}

func validate(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("missing type")
	}
	if def.Title == "" {
		return fmt.Errorf("missing title")
	}
	switch game.BoosterTarget(def.Target) {
	case game.TargetTapValue, game.TargetRegenRate:
	default:
		return fmt.Errorf("unknown target %q", def.Target)
	}
	if def.Multiplier < 1 {
		return fmt.Errorf("multiplier %v below 1", def.Multiplier)
	}
	if def.DurationSeconds <= 0 {
		return fmt.Errorf("non-positive duration %d", def.DurationSeconds)
	}
	if def.Price < 0 {
		return fmt.Errorf("negative price %d", def.Price)
	}
	return nil
}

// Lookup returns the definition for a booster type.
func (c *Catalog) Lookup(boosterType string) (Definition, bool) {
	def, ok := c.byType[boosterType]
	return def, ok
}

// Definitions returns every definition sorted by type for stable rendering.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.ordered...)
}

// Len reports the number of loaded definitions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

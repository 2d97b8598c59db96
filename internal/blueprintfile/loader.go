// Package blueprintfile loads populous's YAML blueprint file format --
// spec.md's "Blueprint file format" contract (vars/items/fixtures) -- into
// a blueprint.Blueprint. spec.md calls the loader itself out of scope and
// leaves its Go shape unspecified, so this package is original, grounded
// directly on that schema; decoding uses gopkg.in/yaml.v3, already a
// teacher dependency used elsewhere in this module by the Yaml generator.
package blueprintfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/populous/internal/blueprint"
	"github.com/dbsmedya/populous/internal/perrors"
)

// file mirrors one blueprint YAML document's allowed top-level keys: vars
// and items from spec.md, plus the supplemented fixtures key.
type file struct {
	Vars     map[string]any   `yaml:"vars"`
	Items    []map[string]any `yaml:"items"`
	Fixtures []fixtureEntry   `yaml:"fixtures"`
}

// fixtureEntry is one entry of a blueprint file's optional fixtures list:
// a named, hand-specified row for item, upserted by the keys implied by
// params and bound into the blueprint variable name.
type fixtureEntry struct {
	Item   string         `yaml:"item"`
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// Load reads and applies each path in paths, in order, onto bp. Later files
// override earlier ones' vars and items, per spec.md's CLI surface
// ("later files override earlier vars/items") -- AddVar simply replaces a
// var's value, and AddItem already treats re-adding a known item name as
// extending it.
func Load(ctx context.Context, bp *blueprint.Blueprint, paths []string) error {
	for _, path := range paths {
		if err := loadOne(ctx, bp, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func loadOne(ctx context.Context, bp *blueprint.Blueprint, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}

	for name, value := range f.Vars {
		bp.AddVar(name, value)
	}

	for _, desc := range f.Items {
		if err := bp.AddItem(desc); err != nil {
			return err
		}
	}

	for _, fx := range f.Fixtures {
		if fx.Item == "" {
			return perrors.Validationf("fixture entry is missing required key \"item\"")
		}
		if fx.Name == "" {
			return perrors.Validationf("fixture entry for item %q is missing required key \"name\"", fx.Item)
		}
		if err := bp.AddFixture(ctx, fx.Item, fx.Name, fx.Params); err != nil {
			return err
		}
	}

	return nil
}

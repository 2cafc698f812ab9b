// Package checklist holds the per-category inspection definitions: the
// checklist items presented each cycle, cycle caps for checklist-bounded
// categories, and the fixed scoring parameters. Defaults are built in;
// plants with customized audit sheets can override them from a YAML file.
package checklist

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bakerline/qtour/internal/model"
)

// Definition describes one category's checklist and scoring parameters.
type Definition struct {
	Category      model.Category `yaml:"category"`
	Items         []string       `yaml:"items"`
	MaxCycles     int            `yaml:"max_cycles"`
	PointsPerItem float64        `yaml:"points_per_item"`
	Weight        float64        `yaml:"weight"`
}

// Set is the full collection of category definitions for a plant.
type Set map[model.Category]Definition

// Items returns the checklist items for a category, or nil for
// counter-based categories that carry no fixed checklist.
func (s Set) Items(c model.Category) []string {
	return s[c].Items
}

// MaxCycles returns the cycle cap for a category; 0 means uncapped.
func (s Set) MaxCycles(c model.Category) int {
	return s[c].MaxCycles
}

// Default returns the built-in checklist definitions.
func Default() Set {
	cbbItems := make([]string, 10)
	for i := range cbbItems {
		cbbItems[i] = fmt.Sprintf("CBB %d", i+1)
	}

	return Set{
		model.CategoryCBB: {
			Category:      model.CategoryCBB,
			Items:         cbbItems,
			MaxCycles:     8,
			PointsPerItem: 12,
			Weight:        0.10,
		},
		model.CategorySecondary: {
			Category:      model.CategorySecondary,
			Items:         []string{"Secondary 1", "Secondary 2"},
			MaxCycles:     8,
			PointsPerItem: 120,
			Weight:        0.15,
		},
		model.CategoryPrimary: {
			Category:      model.CategoryPrimary,
			Items:         []string{"Primary 1", "Primary 2"},
			MaxCycles:     8,
			PointsPerItem: 120,
			Weight:        0.20,
		},
		model.CategoryProduct: {
			Category:      model.CategoryProduct,
			Items:         []string{"Product 1", "Product 2"},
			MaxCycles:     8,
			PointsPerItem: 120,
			Weight:        0.40,
		},
		model.CategoryALC: {
			Category: model.CategoryALC,
		},
		model.CategorySealIntegrity: {
			Category: model.CategorySealIntegrity,
		},
		model.CategoryNetWeight: {
			Category:      model.CategoryNetWeight,
			PointsPerItem: 100,
			Weight:        0.15,
		},
		model.CategoryBakingProcess: {
			Category: model.CategoryBakingProcess,
		},
	}
}

// Load reads category definitions from a YAML file and overlays them on
// the defaults. Categories absent from the file keep their defaults.
func Load(path string) (Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "checklist: read %s", path)
	}

	var overrides []Definition
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "checklist: parse %s", path)
	}

	for _, def := range overrides {
		if !def.Category.Valid() {
			return nil, eris.Errorf("checklist: unknown category %q in %s", def.Category, path)
		}
		base := set[def.Category]
		if def.Items != nil {
			base.Items = def.Items
		}
		if def.MaxCycles > 0 {
			base.MaxCycles = def.MaxCycles
		}
		if def.PointsPerItem > 0 {
			base.PointsPerItem = def.PointsPerItem
		}
		if def.Weight > 0 {
			base.Weight = def.Weight
		}
		set[def.Category] = base
	}

	return set, nil
}

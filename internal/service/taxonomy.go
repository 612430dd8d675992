package service

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type taxonomyDimension struct {
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Slugs       []string `yaml:"slugs"`
}

type taxonomyFile struct {
	Dimensions   map[string]taxonomyDimension `yaml:"dimensions"`
	RoleFamilies map[string][]string          `yaml:"role_families"`
}

// Taxonomy maps rubric slugs to internal dimensions and dimensions to
// report categories
type Taxonomy struct {
	slugToDimension   map[string]string
	dimensionCategory map[string]string
	dimensionDesc     map[string]string
	roleFamilyDimKeys map[string][]string
}

// ParseTaxonomy builds a taxonomy from its YAML document
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var raw taxonomyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	t := &Taxonomy{
		slugToDimension:   make(map[string]string),
		dimensionCategory: make(map[string]string),
		dimensionDesc:     make(map[string]string),
		roleFamilyDimKeys: make(map[string][]string),
	}
	for key, dim := range raw.Dimensions {
		if dim.Category == "" {
			return nil, fmt.Errorf("taxonomy dimension %q has no category", key)
		}
		t.dimensionCategory[key] = dim.Category
		t.dimensionDesc[key] = dim.Description
		for _, slug := range dim.Slugs {
			if prev, ok := t.slugToDimension[slug]; ok && prev != key {
				return nil, fmt.Errorf("taxonomy slug %q mapped to both %q and %q", slug, prev, key)
			}
			t.slugToDimension[slug] = key
		}
	}
	for family, keys := range raw.RoleFamilies {
		for _, k := range keys {
			if _, ok := t.dimensionCategory[k]; !ok {
				return nil, fmt.Errorf("role family %q references unknown dimension %q", family, k)
			}
		}
		t.roleFamilyDimKeys[family] = keys
	}
	return t, nil
}

// DefaultTaxonomy returns the embedded taxonomy. It panics on a malformed
// embedded document, which is a build defect.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(taxonomyYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// CategoryFor resolves slug -> dimension -> category. Unmapped slugs are
// their own category.
func (t *Taxonomy) CategoryFor(slug string) string {
	if key, ok := t.slugToDimension[slug]; ok {
		if cat, ok := t.dimensionCategory[key]; ok {
			return cat
		}
	}
	return slug
}

// DimensionsFor lists the dimension keys assessed for a role family, with
// their descriptions, in stable order. Unknown families get every dimension.
func (t *Taxonomy) DimensionsFor(roleFamily string) []RubricDimension {
	keys, ok := t.roleFamilyDimKeys[roleFamily]
	if !ok {
		keys = make([]string, 0, len(t.dimensionCategory))
		for k := range t.dimensionCategory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	out := make([]RubricDimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, RubricDimension{Slug: k, Description: t.dimensionDesc[k]})
	}
	return out
}

// RubricDimension is a dimension the video model is asked to score
type RubricDimension struct {
	Slug        string
	Description string
}

// Package catalog lists the categories and subcategories a reader can browse.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// General is the subcategory that searches a category without narrowing it.
const General = "General"

//go:embed catalog.yaml
var builtin []byte

// Category is one top-level topic.
type Category struct {
	Name          string   `yaml:"name"`
	Icon          string   `yaml:"icon"`
	Feed          bool     `yaml:"feed"` // served by featured RSS feeds rather than search
	Subcategories []string `yaml:"subcategories"`
}

// Catalog is an ordered set of categories.
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// Parse decodes a YAML catalog and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	seen := make(map[string]bool)
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("catalog: category %d has no name", i)
		}
		key := strings.ToLower(cat.Name)
		if seen[key] {
			return nil, fmt.Errorf("catalog: duplicate category %q", cat.Name)
		}
		seen[key] = true
	}
	return &c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return c
}

// Lookup finds a category by name, ignoring case.
func (c *Catalog) Lookup(name string) (Category, bool) {
	for _, cat := range c.Categories {
		if strings.EqualFold(cat.Name, name) {
			return cat, true
		}
	}
	return Category{}, false
}

// Subcategories returns the subcategories of name. Categories without an
// explicit list, and unknown categories, have only General.
func (c *Catalog) Subcategories(name string) []string {
	cat, ok := c.Lookup(name)
	if !ok || len(cat.Subcategories) == 0 {
		return []string{General}
	}
	return cat.Subcategories
}

// Names returns the category names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		names[i] = cat.Name
	}
	return names
}

// IsFeed reports whether the category is served by featured feeds.
func (c *Catalog) IsFeed(name string) bool {
	cat, ok := c.Lookup(name)
	return ok && cat.Feed
}

// Package catalog reads the static roadmap structure from a YAML file
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog the file parsed but describes an impossible roadmap
var ErrInvalidCatalog = errors.New("invalid catalog")

// Item one roadmap step
type Item struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// Group one learning path
type Group struct {
	ID    string  `yaml:"id" json:"id"`
	Title string  `yaml:"title" json:"title"`
	Items []*Item `yaml:"items" json:"items"`
}

// FileCatalog immutable catalog loaded from disk
type FileCatalog struct {
	groups []*Group
	index  map[string]*Group
}

type document struct {
	Groups []*Group `yaml:"groups"`
}

// Load read and validate the catalog at path
func Load(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse build a catalog from YAML content
func Parse(data []byte) (*FileCatalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &FileCatalog{index: make(map[string]*Group, len(doc.Groups))}
	for i, g := range doc.Groups {
		if g == nil || g.ID == "" {
			return nil, fmt.Errorf("%w: group #%d has no id", ErrInvalidCatalog, i)
		}
		if _, ok := c.index[g.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidCatalog, g.ID)
		}
		seen := make(map[string]bool, len(g.Items))
		for j, it := range g.Items {
			if it == nil || it.ID == "" {
				return nil, fmt.Errorf("%w: item #%d of group %q has no id", ErrInvalidCatalog, j, g.ID)
			}
			if seen[it.ID] {
				return nil, fmt.Errorf("%w: duplicate item %q in group %q", ErrInvalidCatalog, it.ID, g.ID)
			}
			seen[it.ID] = true
		}
		c.groups = append(c.groups, g)
		c.index[g.ID] = g
	}
	return c, nil
}

// TotalItems item count of groupID
func (c *FileCatalog) TotalItems(groupID string) (int, bool) {
	g, ok := c.index[groupID]
	if !ok {
		return 0, false
	}
	return len(g.Items), true
}

// GroupIDs ids in file order
func (c *FileCatalog) GroupIDs() []string {
	ids := make([]string, len(c.groups))
	for i, g := range c.groups {
		ids[i] = g.ID
	}
	return ids
}

// Package market lets users spend bonus points on catalog items.
package market

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Category struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Emoji       string `yaml:"emoji" json:"emoji"`
	Description string `yaml:"description" json:"description"`
}

type Item struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description" json:"description"`
	Emoji           string `yaml:"emoji" json:"emoji"`
	PointsCost      int    `yaml:"cost" json:"pointsCost"`
	Category        string `yaml:"category" json:"category"`
	UnlockThreshold int    `yaml:"unlock" json:"unlockThreshold"`
	Repeatable      bool   `yaml:"repeatable" json:"isRepeatable"`
	// Stock is the total number of units, nil for unlimited.
	Stock  *int `yaml:"stock" json:"stock"`
	Active bool `yaml:"active" json:"isActive"`
}

type Catalog struct {
	categories []Category
	items      []Item
	byID       map[string]Item
}

// LoadCatalog reads the catalog from path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read market catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
		Items      []Item     `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse market catalog: %w", err)
	}

	c := &Catalog{categories: doc.Categories, byID: make(map[string]Item, len(doc.Items))}
	for _, it := range doc.Items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			return nil, fmt.Errorf("parse market catalog: item without id")
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("parse market catalog: duplicate item %q", it.ID)
		}
		if it.PointsCost <= 0 {
			return nil, fmt.Errorf("parse market catalog: item %q has no cost", it.ID)
		}
		c.items = append(c.items, it)
		c.byID[it.ID] = it
	}
	log.Debugf("Loaded %d market items", len(c.items))
	return c, nil
}

func (c *Catalog) Categories() []Category {
	return c.categories
}

// Items returns the active items in catalog order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.Active {
			out = append(out, it)
		}
	}
	return out
}

// Lookup finds an active item.
func (c *Catalog) Lookup(id string) (Item, bool) {
	it, ok := c.byID[id]
	if !ok || !it.Active {
		return Item{}, false
	}
	return it, true
}

// Package catalog provides the menu used to price orders.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed default_menu.yaml
var defaultMenu []byte

// File is the on-disk layout of a menu (menu.yaml or menu.json).
type File struct {
	Items []ports.MenuItem `yaml:"items" json:"items"`
}

// Menu is an immutable ports.Catalog.
type Menu struct {
	items []ports.MenuItem
	index map[string]int
}

var _ ports.Catalog = (*Menu)(nil)

// New builds a menu from items. Names must be unique ignoring case and
// prices must not be negative.
func New(items []ports.MenuItem) (*Menu, error) {
	m := &Menu{index: make(map[string]int, len(items))}
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return nil, fmt.Errorf("menu item without a name")
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("menu item %q has a negative price", item.Name)
		}
		key := normalize(item.Name)
		if _, dup := m.index[key]; dup {
			return nil, fmt.Errorf("duplicate menu item %q", item.Name)
		}
		m.index[key] = len(m.items)
		m.items = append(m.items, item)
	}
	return m, nil
}

// Default returns the built-in menu.
func Default() *Menu {
	m, err := Parse(defaultMenu, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in menu is invalid: %v", err))
	}
	return m
}

// Load reads a menu file. The format follows the extension: .json is JSON,
// anything else is YAML.
func Load(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a menu document.
func Parse(data []byte, ext string) (*Menu, error) {
	var f File
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse menu json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse menu yaml: %w", err)
		}
	}
	return New(f.Items)
}

// Lookup finds an item by name, ignoring case and surrounding spaces.
func (m *Menu) Lookup(name string) (ports.MenuItem, error) {
	i, ok := m.index[normalize(name)]
	if !ok {
		return ports.MenuItem{}, fmt.Errorf("%w: %q", domain.ErrUnknownItem, name)
	}
	return clone(m.items[i]), nil
}

// Items returns a copy of the menu in file order.
func (m *Menu) Items() []ports.MenuItem {
	out := make([]ports.MenuItem, len(m.items))
	for i, item := range m.items {
		out[i] = clone(item)
	}
	return out
}

// Marshal encodes the menu as YAML.
func (m *Menu) Marshal() ([]byte, error) {
	return yaml.Marshal(File{Items: m.Items()})
}

func clone(item ports.MenuItem) ports.MenuItem {
	if item.Modifiers != nil {
		item.Modifiers = append([]string(nil), item.Modifiers...)
	}
	return item
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

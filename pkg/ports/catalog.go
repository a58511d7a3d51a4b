package ports

import "github.com/shopspring/decimal"

// MenuItem is an orderable item.
type MenuItem struct {
	Name        string          `json:"name" yaml:"name"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Category    string          `json:"category,omitempty" yaml:"category,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Modifiers   []string        `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// Catalog resolves item names to unit prices.
type Catalog interface {
	// Lookup returns the item for a name, or an error wrapping domain.ErrUnknownItem.
	Lookup(name string) (MenuItem, error)

	// Items lists the menu in display order.
	Items() []MenuItem
}

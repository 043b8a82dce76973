// Package catalog loads the optional product catalog that supplies
// per-product default prices to the bulk-import parser.
package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Product is one sellable item with its unit price.
type Product struct {
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
}

// Catalog indexes products by lowercased name.
type Catalog struct {
	byName map[string]Product
}

// LoadFile reads a YAML list of products from the given path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var products []Product
	if err := yaml.Unmarshal(data, &products); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	return New(products), nil
}

// New builds a catalog from a product list. Later entries with the same
// name override earlier ones.
func New(products []Product) *Catalog {
	c := &Catalog{byName: make(map[string]Product, len(products))}
	for _, p := range products {
		c.byName[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}
	return c
}

// PriceFor resolves a product's unit price, case-insensitively.
func (c *Catalog) PriceFor(name string) (float64, bool) {
	p, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, false
	}
	return p.Price, true
}

// Len is the number of distinct products.
func (c *Catalog) Len() int {
	return len(c.byName)
}

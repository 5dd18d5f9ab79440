// Package breed holds the static breed tables used to enrich a classification:
// descriptive characteristics and an average adult weight per breed.
package breed

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultWeight is used for labels the catalog does not know.
const DefaultWeight = 600.0

var ErrInvalidCatalog = errors.New("invalid breed catalog")

// Breed describes one entry of the catalog.
type Breed struct {
	Name            string   `yaml:"name"            json:"name"`
	AverageWeight   float64  `yaml:"average_weight"  json:"average_weight"`
	Characteristics []string `yaml:"characteristics" json:"characteristics"`
}

// Catalog is an immutable, ordered set of breeds. Safe for concurrent use.
type Catalog struct {
	breeds []Breed
	index  map[string]int
}

var defaultBreeds = []Breed{
	{Name: "Angus", AverageWeight: 650, Characteristics: []string{"Black", "Polled", "Muscular", "Adaptable"}},
	{Name: "Hereford", AverageWeight: 680, Characteristics: []string{"Red and white", "Short horns", "Hardy", "Docile"}},
	{Name: "Holstein", AverageWeight: 750, Characteristics: []string{"Black and white", "Large", "Dairy", "High yield"}},
	{Name: "Jersey", AverageWeight: 450, Characteristics: []string{"Light brown", "Small", "Dairy", "High butterfat"}},
	{Name: "Brahman", AverageWeight: 700, Characteristics: []string{"Grey", "Hump", "Heat tolerant", "Long horns"}},
	{Name: "Charolais", AverageWeight: 800, Characteristics: []string{"White", "Large", "Muscular", "Beef"}},
	{Name: "Limousin", AverageWeight: 750, Characteristics: []string{"Golden", "Muscular", "Beef", "Efficient"}},
	{Name: "Simmental", AverageWeight: 800, Characteristics: []string{"Red and white", "Large", "Dual purpose", "Gentle"}},
	{Name: "Shorthorn", AverageWeight: 650, Characteristics: []string{"Red", "Medium", "Dual purpose", "Heritage"}},
	{Name: "Gelbvieh", AverageWeight: 700, Characteristics: []string{"Golden", "Medium", "Beef", "European"}},
}

// Default returns the built-in catalog of ten common cattle breeds.
func Default() *Catalog {
	c, err := New(defaultBreeds)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog, rejecting empty or duplicate names and non-positive weights.
func New(breeds []Breed) (*Catalog, error) {
	if len(breeds) == 0 {
		return nil, fmt.Errorf("%w: no breeds", ErrInvalidCatalog)
	}

	c := &Catalog{
		breeds: make([]Breed, 0, len(breeds)),
		index:  make(map[string]int, len(breeds)),
	}
	for _, b := range breeds {
		if b.Name == "" {
			return nil, fmt.Errorf("%w: breed name is required", ErrInvalidCatalog)
		}
		if _, dup := c.index[b.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate breed %q", ErrInvalidCatalog, b.Name)
		}
		if b.AverageWeight <= 0 {
			return nil, fmt.Errorf("%w: breed %q must have a positive average_weight", ErrInvalidCatalog, b.Name)
		}
		c.index[b.Name] = len(c.breeds)
		c.breeds = append(c.breeds, Breed{
			Name:            b.Name,
			AverageWeight:   b.AverageWeight,
			Characteristics: slices.Clone(b.Characteristics),
		})
	}
	return c, nil
}

type catalogFile struct {
	Breeds []Breed `yaml:"breeds"`
}

// Load reads a YAML catalog of the form:
//
//	breeds:
//	  - name: Angus
//	    average_weight: 650
//	    characteristics: [Black, Polled]
//
// An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read breed catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(f.Breeds)
}

// Lookup returns the breed entry for name.
func (c *Catalog) Lookup(name string) (Breed, bool) {
	i, ok := c.index[name]
	if !ok {
		return Breed{}, false
	}
	b := c.breeds[i]
	b.Characteristics = slices.Clone(b.Characteristics)
	return b, true
}

// AverageWeight returns the breed's average weight, or DefaultWeight when unknown.
func (c *Catalog) AverageWeight(name string) float64 {
	if i, ok := c.index[name]; ok {
		return c.breeds[i].AverageWeight
	}
	return DefaultWeight
}

// Characteristics returns a copy of the breed's descriptive traits; empty (never nil) when unknown.
func (c *Catalog) Characteristics(name string) []string {
	if i, ok := c.index[name]; ok {
		return slices.Clone(c.breeds[i].Characteristics)
	}
	return []string{}
}

// Names returns breed names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.breeds))
	for i, b := range c.breeds {
		names[i] = b.Name
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.breeds)
}

// Package categories holds the fixed mapping from risk category to the
// basket of ticker symbols allocated for it.
package categories

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/aristath/allocator/internal/domain"
)

// DefaultCategory is used when a request does not name one
const DefaultCategory = "Moderate"

// Category is a named basket of symbols
type Category struct {
	Name   string   `toml:"name" json:"name"`
	Assets []string `toml:"assets" json:"assets"`
}

// Registry maps category names to asset lists. It is built once at startup
// and never mutated, so it is safe for concurrent use.
type Registry struct {
	categories []Category
	index      map[string]int
}

// Default returns the built-in registry
func Default() *Registry {
	r, err := NewRegistry([]Category{
		{
			Name: "Aggressive",
			Assets: []string{
				"TSLA", "ADANIENT.NS", "TATAMOTORS.NS", "BAJFINANCE.NS", "RELIANCE.NS",
				"ZOMATO.NS", "NYKAA.NS", "PAYTM.NS", "AFFLE.NS", "NVDA",
			},
		},
		{
			Name: "Moderate",
			Assets: []string{
				"HDFCBANK.NS", "ICICIBANK.NS", "INFY.NS", "WIPRO.NS", "TCS.NS",
				"HCLTECH.NS", "SUNPHARMA.NS", "CIPLA.NS", "LT.NS", "BHARTIARTL.NS",
			},
		},
		{
			Name: "Conservative",
			Assets: []string{
				"AAPL", "MSFT", "WMT", "KO", "PG",
				"JNJ", "XOM", "ITC.NS", "HINDUNILVR.NS", "NESTLEIND.NS",
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry validates the categories and builds a registry from them
func NewRegistry(cats []Category) (*Registry, error) {
	if len(cats) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}

	r := &Registry{
		categories: make([]Category, 0, len(cats)),
		index:      make(map[string]int, len(cats)),
	}

	for _, c := range cats {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category name must not be empty")
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		if len(c.Assets) == 0 {
			return nil, fmt.Errorf("category %q has no assets", name)
		}

		seen := make(map[string]bool, len(c.Assets))
		assets := make([]string, 0, len(c.Assets))
		for _, a := range c.Assets {
			a = strings.ToUpper(strings.TrimSpace(a))
			if a == "" {
				return nil, fmt.Errorf("category %q has an empty symbol", name)
			}
			if seen[a] {
				return nil, fmt.Errorf("category %q lists %s twice", name, a)
			}
			seen[a] = true
			assets = append(assets, a)
		}

		r.index[name] = len(r.categories)
		r.categories = append(r.categories, Category{Name: name, Assets: assets})
	}

	return r, nil
}

type registryFile struct {
	Category []Category `toml:"category"`
}

// LoadFile reads a registry from a TOML file of [[category]] tables.
// An empty path returns the built-in registry.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse builds a registry from TOML content
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	return NewRegistry(file.Category)
}

// Lookup returns a copy of the assets for name. Unknown names yield an
// ErrInvalidInput listing the valid choices.
func (r *Registry) Lookup(name string) ([]string, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, r.InvalidCategoryMessage())
	}
	assets := make([]string, len(r.categories[i].Assets))
	copy(assets, r.categories[i].Assets)
	return assets, nil
}

// Names returns category names in registry order
func (r *Registry) Names() []string {
	names := make([]string, len(r.categories))
	for i, c := range r.categories {
		names[i] = c.Name
	}
	return names
}

// All returns a copy of every category in registry order
func (r *Registry) All() []Category {
	out := make([]Category, len(r.categories))
	for i, c := range r.categories {
		assets := make([]string, len(c.Assets))
		copy(assets, c.Assets)
		out[i] = Category{Name: c.Name, Assets: assets}
	}
	return out
}

// Symbols returns the deduplicated union of all assets in registry order
func (r *Registry) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.categories {
		for _, a := range c.Assets {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// InvalidCategoryMessage is the user-facing message for an unknown category,
// e.g. "Invalid category. Choose from 'Aggressive', 'Moderate', or 'Conservative'."
func (r *Registry) InvalidCategoryMessage() string {
	quoted := make([]string, len(r.categories))
	for i, c := range r.categories {
		quoted[i] = "'" + c.Name + "'"
	}

	var choices string
	switch len(quoted) {
	case 1:
		choices = quoted[0]
	case 2:
		choices = quoted[0] + " or " + quoted[1]
	default:
		choices = strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
	}
	return "Invalid category. Choose from " + choices + "."
}

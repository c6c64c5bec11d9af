package scanning

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultLayoutName is the layout used when a request names none
const DefaultLayoutName = "default"

// Layout maps the number of prices found on a display to the fuel order, top to bottom.
// Stations are assumed to list fuels in a fixed vertical order; this is a best-effort heuristic.
type Layout struct {
	Name   string
	Orders map[int][]FuelType
}

// DefaultLayout is the order used by most Swiss station displays
func DefaultLayout() *Layout {
	return &Layout{
		Name: DefaultLayoutName,
		Orders: map[int][]FuelType{
			3: {Benzin95, Benzin98, Diesel},
			2: {Benzin95, Diesel},
			1: {Benzin95},
		},
	}
}

// Validate checks every order has one unique fuel type per price
func (l *Layout) Validate() error {
	if len(l.Orders) == 0 {
		return fmt.Errorf("layout %q has no orders", l.Name)
	}
	for count, order := range l.Orders {
		if count <= 0 {
			return fmt.Errorf("layout %q: count must be positive, got %d", l.Name, count)
		}
		if len(order) != count {
			return fmt.Errorf("layout %q: order for %d prices lists %d fuel types", l.Name, count, len(order))
		}
		seen := make(map[FuelType]bool, len(order))
		for _, f := range order {
			if seen[f] {
				return fmt.Errorf("layout %q: fuel type %q repeated for %d prices", l.Name, f, count)
			}
			seen[f] = true
		}
	}
	return nil
}

// Map assigns fuel types to ordered prices.
// No prices is an empty result, not an error.
func (l *Layout) Map(prices []decimal.Decimal) ([]PriceReading, error) {
	if len(prices) == 0 {
		return nil, nil
	}
	order, ok := l.Orders[len(prices)]
	if !ok {
		return nil, fmt.Errorf("%w: %d prices in layout %q", ErrUnmappedCount, len(prices), l.Name)
	}
	readings := make([]PriceReading, len(prices))
	for i, v := range prices {
		readings[i] = PriceReading{Type: order[i], Value: v}
	}
	return readings, nil
}

// Layouts is a set of named layouts with a fallback default
type Layouts struct {
	byName map[string]*Layout
}

// NewLayouts builds a set; a missing "default" entry is filled with DefaultLayout
func NewLayouts(layouts ...*Layout) (*Layouts, error) {
	set := &Layouts{byName: map[string]*Layout{DefaultLayoutName: DefaultLayout()}}
	for _, l := range layouts {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		set.byName[l.Name] = l
	}
	return set, nil
}

// Get returns the named layout, falling back to the default for unknown names
func (s *Layouts) Get(name string) *Layout {
	if name == "" {
		return s.byName[DefaultLayoutName]
	}
	if l, ok := s.byName[name]; ok {
		return l
	}
	slog.Warn("Unknown layout, using default", "layout", name)
	return s.byName[DefaultLayoutName]
}

// Names lists the configured layouts
func (s *Layouts) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalYAML lets layout files spell fuel types loosely
func (f *FuelType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseFuelType(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type layoutFile struct {
	Layouts map[string]map[int][]FuelType `yaml:"layouts"`
}

// ParseLayouts reads layouts from YAML:
//
//	layouts:
//	  diesel-first:
//	    2: [Diesel, Benzin 95]
//	    3: [Diesel, Benzin 95, Benzin 98]
func ParseLayouts(data []byte) (*Layouts, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing layouts: %w", err)
	}
	layouts := make([]*Layout, 0, len(f.Layouts))
	for name, orders := range f.Layouts {
		layouts = append(layouts, &Layout{Name: name, Orders: orders})
	}
	return NewLayouts(layouts...)
}

// LoadLayouts reads a layout file from disk
func LoadLayouts(path string) (*Layouts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layouts file: %w", err)
	}
	return ParseLayouts(data)
}

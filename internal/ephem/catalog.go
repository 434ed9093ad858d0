// Package ephem loads orbital element sets from local files into an
// immutable Catalog. Acquiring or refreshing those files is left to the
// operator.
package ephem

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/timescale"
)

// Catalog is an immutable, ordered set of element sets keyed by satellite ID.
type Catalog struct {
	elements []propagation.Elements
	index    map[string]int
	loadedAt time.Time
}

// NewCatalog builds a catalog. Order is preserved; a repeated ID is an error.
func NewCatalog(elements ...propagation.Elements) (Catalog, error) {
	c := Catalog{
		elements: slices.Clone(elements),
		index:    make(map[string]int, len(elements)),
		loadedAt: time.Now().UTC(),
	}
	for i, el := range c.elements {
		if prev, dup := c.index[el.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate satellite id %q (%s and %s)", el.ID, c.elements[prev].Name, el.Name)
		}
		c.index[el.ID] = i
	}
	return c, nil
}

// Len returns the number of satellites.
func (c Catalog) Len() int { return len(c.elements) }

// LoadedAt is when the catalog was built.
func (c Catalog) LoadedAt() time.Time { return c.loadedAt }

// All returns a copy of the element sets in load order.
func (c Catalog) All() []propagation.Elements {
	return slices.Clone(c.elements)
}

// Lookup returns the element set with the given ID.
func (c Catalog) Lookup(id string) (propagation.Elements, bool) {
	i, ok := c.index[id]
	if !ok {
		return propagation.Elements{}, false
	}
	return c.elements[i], true
}

// Groups returns the distinct group names in sorted order.
func (c Catalog) Groups() []string {
	seen := make(map[string]bool)
	for _, el := range c.elements {
		seen[el.Group] = true
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Filter returns the element sets belonging to any of the named groups
// (case-insensitive). With no groups it returns everything.
func (c Catalog) Filter(groups ...string) []propagation.Elements {
	if len(groups) == 0 {
		return c.All()
	}
	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		want[strings.ToUpper(g)] = true
	}
	var out []propagation.Elements
	for _, el := range c.elements {
		if want[strings.ToUpper(el.Group)] {
			out = append(out, el)
		}
	}
	return out
}

// EpochRange returns the oldest and newest element epochs.
func (c Catalog) EpochRange() (oldest, newest timescale.Epoch) {
	for i, el := range c.elements {
		if i == 0 || el.Epoch.Before(oldest) {
			oldest = el.Epoch
		}
		if i == 0 || newest.Before(el.Epoch) {
			newest = el.Epoch
		}
	}
	return oldest, newest
}

// Sources names the element files to load.
type Sources struct {
	TLE       []string // 3-line TLE files; group from basename
	Keplerian []string // JSON Keplerian element files
}

// Load reads every source file into one catalog. Any unreadable file or
// duplicate ID fails the whole load.
func Load(src Sources, scales timescale.Registry, logger *slog.Logger) (Catalog, error) {
	var all []propagation.Elements
	for _, path := range src.TLE {
		els, err := loadFile(path, func(f *os.File) ([]propagation.Elements, error) {
			return ParseTLE(f, GroupFromPath(path), logger)
		})
		if err != nil {
			return Catalog{}, err
		}
		logger.Info("loaded TLE file", "path", path, "group", GroupFromPath(path), "satellites", len(els))
		all = append(all, els...)
	}
	for _, path := range src.Keplerian {
		els, err := loadFile(path, func(f *os.File) ([]propagation.Elements, error) {
			return ParseKeplerian(f, GroupFromPath(path), scales)
		})
		if err != nil {
			return Catalog{}, err
		}
		logger.Info("loaded keplerian file", "path", path, "satellites", len(els))
		all = append(all, els...)
	}
	if len(all) == 0 {
		return Catalog{}, fmt.Errorf("no satellites found in %d file(s)", len(src.TLE)+len(src.Keplerian))
	}
	return NewCatalog(all...)
}

func loadFile(path string, parse func(*os.File) ([]propagation.Elements, error)) ([]propagation.Elements, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening element file: %w", err)
	}
	defer f.Close()

	els, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return els, nil
}

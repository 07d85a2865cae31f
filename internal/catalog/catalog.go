// Package catalog maps billable operation identifiers to their credit cost.
// The catalog is loaded once at process start and immutable afterwards; a
// cost of 0 marks a free operation.
package catalog

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/dua-platform/credits-backend/internal/apperr"
)

type Entry struct {
	Cost     int64
	Name     string
	Category string
}

type Catalog struct {
	entries map[string]Entry
}

// file format:
//
//	[operations.video_gen4_5s]
//	cost = 20
//	name = "Video Gen-4 (5s)"
//	category = "video"
type catalogFile struct {
	Operations map[string]fileEntry `toml:"operations"`
}

type fileEntry struct {
	Cost     int64  `toml:"cost"`
	Name     string `toml:"name"`
	Category string `toml:"category"`
}

// Default returns the built-in product catalog.
func Default() *Catalog {
	entries := make(map[string]Entry, len(defaults))
	for op, e := range defaults {
		entries[op] = e
	}
	return &Catalog{entries: entries}
}

// Load reads a TOML catalog file and merges it over the defaults. Entries in
// the file add to or override the built-ins; negative costs are rejected.
func Load(path string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	c := Default()
	for op, fe := range f.Operations {
		if fe.Cost < 0 {
			return nil, fmt.Errorf("load catalog %s: operation %q has negative cost %d", path, op, fe.Cost)
		}
		e := Entry{Cost: fe.Cost, Name: fe.Name, Category: fe.Category}
		if e.Name == "" {
			e.Name = op
		}
		c.entries[op] = e
	}
	return c, nil
}

// Cost returns the credit cost of an operation. Unknown operations are a
// ValidationError; 0 means free.
func (c *Catalog) Cost(operation string) (int64, error) {
	e, ok := c.entries[operation]
	if !ok {
		return 0, apperr.NewValidationError("operation", fmt.Sprintf("unknown operation %q", operation))
	}
	return e.Cost, nil
}

func (c *Catalog) IsFree(operation string) bool {
	e, ok := c.entries[operation]
	return ok && e.Cost == 0
}

// Name returns the display name for journal metadata, falling back to the
// operation identifier itself.
func (c *Catalog) Name(operation string) string {
	if e, ok := c.entries[operation]; ok && e.Name != "" {
		return e.Name
	}
	return operation
}

func (c *Catalog) Category(operation string) string {
	if e, ok := c.entries[operation]; ok {
		return e.Category
	}
	return ""
}

// Operations lists all known operation identifiers, sorted.
func (c *Catalog) Operations() []string {
	ops := make([]string, 0, len(c.entries))
	for op := range c.entries {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

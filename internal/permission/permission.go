// Package permission holds the grade-based menu table that drives both the
// navigation tree shown to a user and the access checks on API routes.
package permission

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/fitteam/fitlib/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed menus.yaml
var defaultMenus []byte

// Access is the kind of operation being checked.
type Access int

const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Item is one menu entry. An empty WriteGrade marks a read-only menu.
type Item struct {
	Key        string       `yaml:"key" json:"key"`
	Title      string       `yaml:"title" json:"title"`
	Path       string       `yaml:"path,omitempty" json:"path,omitempty"`
	Icon       string       `yaml:"icon,omitempty" json:"icon,omitempty"`
	Order      int          `yaml:"order" json:"order"`
	ReadGrade  models.Grade `yaml:"read_grade" json:"read_grade"`
	WriteGrade models.Grade `yaml:"write_grade,omitempty" json:"write_grade,omitempty"`
	Children   []Item       `yaml:"children,omitempty" json:"children,omitempty"`
}

// Table is a validated menu table.
type Table struct {
	items []Item
	index map[string]Item
}

type menuFile struct {
	Menus []Item `yaml:"menus"`
}

// Parse decodes and validates a YAML menu table.
func Parse(data []byte) (*Table, error) {
	var f menuFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse menus: %w", err)
	}
	if len(f.Menus) == 0 {
		return nil, fmt.Errorf("parse menus: no menus defined")
	}
	t := &Table{index: make(map[string]Item)}
	if err := t.add(f.Menus, ""); err != nil {
		return nil, err
	}
	t.items = sortItems(f.Menus)
	return t, nil
}

func (t *Table) add(items []Item, parent string) error {
	for _, it := range items {
		if it.Key == "" {
			return fmt.Errorf("menu under %q: key is required", parent)
		}
		if _, dup := t.index[it.Key]; dup {
			return fmt.Errorf("menu %q: duplicate key", it.Key)
		}
		if !it.ReadGrade.Valid() {
			return fmt.Errorf("menu %q: unknown read_grade %q", it.Key, it.ReadGrade)
		}
		if it.WriteGrade != "" {
			if !it.WriteGrade.Valid() {
				return fmt.Errorf("menu %q: unknown write_grade %q", it.Key, it.WriteGrade)
			}
			if it.WriteGrade.Rank() < it.ReadGrade.Rank() {
				return fmt.Errorf("menu %q: write_grade %s is below read_grade %s", it.Key, it.WriteGrade, it.ReadGrade)
			}
		}
		t.index[it.Key] = it
		if err := t.add(it.Children, it.Key); err != nil {
			return err
		}
	}
	return nil
}

func sortItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		if len(out[i].Children) > 0 {
			out[i].Children = sortItems(out[i].Children)
		}
	}
	return out
}

// Default returns the built-in menu table.
func Default() *Table {
	t, err := Parse(defaultMenus)
	if err != nil {
		panic("embedded menus.yaml: " + err.Error())
	}
	return t
}

// Items returns the full table in display order.
func (t *Table) Items() []Item {
	return t.items
}

// Lookup returns the menu with the given key.
func (t *Table) Lookup(key string) (Item, bool) {
	it, ok := t.index[key]
	return it, ok
}

// Filter returns the menus visible to grade in display order. A parent
// without a path of its own is dropped when none of its children are visible.
func (t *Table) Filter(grade models.Grade) []Item {
	return filterItems(t.items, grade)
}

func filterItems(items []Item, grade models.Grade) []Item {
	out := []Item{}
	for _, it := range items {
		if !grade.AtLeast(it.ReadGrade) {
			continue
		}
		if len(it.Children) > 0 {
			it.Children = filterItems(it.Children, grade)
			if len(it.Children) == 0 {
				it.Children = nil
				if it.Path == "" {
					continue
				}
			}
		}
		out = append(out, it)
	}
	return out
}

// Allowed reports whether grade may perform access on the menu key.
// Unknown keys and writes to read-only menus are denied.
func (t *Table) Allowed(key string, access Access, grade models.Grade) bool {
	it, ok := t.index[key]
	if !ok {
		return false
	}
	if access == Write {
		return it.WriteGrade != "" && grade.AtLeast(it.WriteGrade)
	}
	return grade.AtLeast(it.ReadGrade)
}

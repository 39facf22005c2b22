package dataset

import (
	"slices"

	"github.com/tphakala/boxlabel/internal/errors"
)

// nameTable is the fixed id table used when the class registry is disabled.
type nameTable struct {
	names []string
	index map[string]int
}

func newNameTable(names []string) *nameTable {
	t := &nameTable{names: slices.Clone(names), index: make(map[string]int, len(names))}
	for i, n := range t.names {
		t.index[n] = i
	}
	return t
}

func (t *nameTable) IDFor(name string) (int, bool) {
	id, ok := t.index[name]
	return id, ok
}

func (t *nameTable) Ensure(name string) (int, error) {
	if id, ok := t.index[name]; ok {
		return id, nil
	}
	return -1, errors.Newf("class %q not in dataset class table", name).
		Component("dataset").
		Category(errors.CategoryNotFound).
		Build()
}

func (t *nameTable) NameFor(id int) (string, bool) {
	if id < 0 || id >= len(t.names) {
		return "", false
	}
	return t.names[id], true
}

func (t *nameTable) Names() []string { return slices.Clone(t.names) }

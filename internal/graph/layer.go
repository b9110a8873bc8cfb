package graph

import (
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// Kind tells item layers from link layers.
type Kind int

const (
	ItemKind Kind = iota
	LinkKind
)

func (k Kind) String() string {
	if k == LinkKind {
		return "link"
	}
	return "item"
}

// Entry is one mapped domain record.
type Entry struct {
	ID    string
	Attrs Attrs
}

// Extractor maps a dataset to the entries of one layer.
type Extractor func(ds *models.Dataset) []Entry

// Extract builds an Extractor from a collection accessor, an id function and a mapper.
func Extract[T any](collection func(*models.Dataset) []T, id func(T) string, mapper func(T) Attrs) Extractor {
	return func(ds *models.Dataset) []Entry {
		if ds == nil {
			return nil
		}
		items := collection(ds)
		entries := make([]Entry, 0, len(items))
		for _, item := range items {
			entries = append(entries, Entry{ID: id(item), Attrs: mapper(item)})
		}
		return entries
	}
}

// Placement positions an item datum. index is the datum position in its
// layer after sorting; siblings is the whole layer data.
type Placement func(d *Datum, index int, siblings []*Datum)

// Layer is a named, independently reconciled collection of same-kind datums.
type Layer struct {
	Name    string
	Kind    Kind
	Label   string
	Extract Extractor
	// Place is only used by item layers.
	Place        Placement
	FocusHandler FocusHandlerRef

	Data    []*Datum
	Indexed map[string]*Datum
}

// NewItemLayer returns an empty item layer.
func NewItemLayer(name, label string, extract Extractor, place Placement, handler FocusHandlerRef) *Layer {
	return &Layer{
		Name:         name,
		Kind:         ItemKind,
		Label:        label,
		Extract:      extract,
		Place:        place,
		FocusHandler: handler,
		Indexed:      map[string]*Datum{},
	}
}

// NewLinkLayer returns an empty link layer.
func NewLinkLayer(name string, extract Extractor, handler FocusHandlerRef) *Layer {
	return &Layer{
		Name:         name,
		Kind:         LinkKind,
		Extract:      extract,
		FocusHandler: handler,
		Indexed:      map[string]*Datum{},
	}
}

// Get returns the datum with the given id.
func (l *Layer) Get(id string) (*Datum, bool) {
	d, ok := l.Indexed[id]
	return d, ok
}

// Lookup resolves a reference to an item datum, or nil.
type Lookup func(Ref) *Datum

// Result describes what a reconciliation changed.
type Result struct {
	Changed bool
	Created []*Datum
	Removed []string
}

// Reconcile diffs the layer against a dataset. Existing datums keep their
// identity and physical state and only receive the newly mapped attributes.
// Link entries whose endpoints do not resolve through lookup are dropped.
func Reconcile(l *Layer, ds *models.Dataset, lookup Lookup) Result {
	entries := l.Extract(ds)
	var res Result

	next := make([]*Datum, 0, len(entries))
	index := make(map[string]*Datum, len(entries))
	for _, e := range entries {
		if l.Kind == LinkKind && (lookup == nil || lookup(e.Attrs.Source) == nil || lookup(e.Attrs.Target) == nil) {
			continue
		}
		if _, dup := index[e.ID]; dup {
			continue
		}
		d, ok := l.Indexed[e.ID]
		if ok {
			d.merge(e.Attrs)
		} else {
			d = newDatum(l.Name, e.ID, e.Attrs)
			res.Created = append(res.Created, d)
			res.Changed = true
		}
		next = append(next, d)
		index[e.ID] = d
	}
	for id := range l.Indexed {
		if _, ok := index[id]; !ok {
			res.Removed = append(res.Removed, id)
		}
	}
	if len(next) != len(l.Data) || len(res.Removed) > 0 {
		res.Changed = true
	}

	l.Data = next
	l.Indexed = index
	return res
}

package harness

import (
	"cmp"
	"slices"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
	"github.com/roach88/tinkergo/internal/traversal"
)

// Entry is a named traversal that scenarios and the CLI refer to.
type Entry struct {
	Name        string
	Description string
	// Build appends the traversal's steps to a fresh root.
	Build func(root *traversal.Traversal) *traversal.Traversal
	// Ordered results are compared as returned. Everything else is sorted
	// before comparison.
	Ordered bool
	// Deep also sorts the lists nested inside results, for folds and
	// group values whose order depends on execution.
	Deep bool
}

var anon = traversal.Anon

var catalog = []Entry{
	{
		Name:        "out-out-names",
		Description: "names two hops out of every vertex",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Out().Out().Values("name") },
	},
	{
		Name:        "lop-creators",
		Description: "names of the people who created lop",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V(3).In("created").Values("name") },
	},
	{
		Name:        "knows-edge-ids",
		Description: "ids of every knows edge",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.E().HasLabel("knows").ID() },
	},
	{
		Name:        "older-than-30",
		Description: "names of people older than 30",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().HasLabel("person").Has("age", traversal.Gt(ir.IRInt(30))).Values("name")
		},
	},
	{
		Name:        "name-lookup",
		Description: "the vertex named marko, through the name index when there is one",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Has("name", traversal.Eq(ir.IRString("marko")))
		},
	},
	{
		Name:        "out-count",
		Description: "number of outgoing edges traversed",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Out().Count() },
	},
	{
		Name:        "age-sum",
		Description: "sum of all person ages",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().HasLabel("person").Values("age").Sum() },
	},
	{
		Name:        "out-names-fold",
		Description: "every out neighbor name folded into one list",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Out().Values("name").Fold() },
		Deep:        true,
	},
	{
		Name:        "names-by-label",
		Description: "vertex names grouped by label",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Group().By(anon().Label()).By(anon().Values("name"))
		},
		Deep: true,
	},
	{
		Name:        "count-by-label",
		Description: "vertex counts per label",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().GroupCount().By(anon().Label()) },
	},
	{
		Name:        "out-name-counts",
		Description: "how often each name is reached in one hop",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Out().GroupCount().By(anon().Values("name"))
		},
	},
	{
		Name:        "people-by-age",
		Description: "people from oldest to youngest",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().HasLabel("person").Order().ByKey("age", traversal.Desc)
		},
		Ordered: true,
	},
	{
		Name:        "out-names-ordered",
		Description: "one hop names in ascending order",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Out().Values("name").Order() },
		Ordered:     true,
	},
	{
		Name:        "out-names-dedup",
		Description: "distinct one hop names",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Out().Values("name").Dedup() },
	},
	{
		Name:        "local-out-edges",
		Description: "every out edge, folded per vertex and unfolded again",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Local(anon().OutE().Fold()).Unfold()
		},
	},
	{
		Name:        "property-keys",
		Description: "every property key of every vertex",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().ValueMap().Unfold().Map(traversal.EntryKey)
		},
	},
	{
		Name:        "co-creators",
		Description: "marko's co-creators, keeping only marko himself",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V(1).As("a").Out("created").In("created").Retain("a").Values("name")
		},
	},
	{
		Name:        "known-aggregate",
		Description: "marko's neighbors retained against an aggregate side effect",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V(1).Out().Aggregate("x").In("knows").Out("knows").Retain("x").Values("name")
		},
	},
	{
		Name:        "creators",
		Description: "names of vertices with a created edge",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Filter(anon().Out("created")).Values("name")
		},
	},
	{
		Name:        "marko-union",
		Description: "who marko knows and what he created",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V(1).Union(anon().Out("knows"), anon().Out("created")).Values("name")
		},
	},
	{
		Name:        "repeat-out",
		Description: "names reached by repeating out twice",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V().Repeat(anon().Out()).Times(2).Values("name")
		},
	},
	{
		Name:        "marko-paths",
		Description: "paths from marko to the names of who he knows",
		Build: func(t *traversal.Traversal) *traversal.Traversal {
			return t.V(1).Out("knows").Values("name").Path()
		},
	},
	{
		Name:        "first-two",
		Description: "the first two vertices; range is not supported on a computer",
		Build:       func(t *traversal.Traversal) *traversal.Traversal { return t.V().Range(0, 2) },
		Ordered:     true,
	},
}

// Lookup returns the catalog entry with the given name.
func Lookup(name string) (Entry, bool) {
	i := slices.IndexFunc(catalog, func(e Entry) bool { return e.Name == name })
	if i < 0 {
		return Entry{}, false
	}
	return catalog[i], true
}

// Catalog returns every entry sorted by name.
func Catalog() []Entry {
	out := slices.Clone(catalog)
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Build builds the named traversal on root.
func Build(name string, root *traversal.Traversal) (*traversal.Traversal, Entry, error) {
	e, ok := Lookup(name)
	if !ok {
		return nil, Entry{}, fault.New(fault.CodeInvalidConfig, "unknown traversal %q", name)
	}
	return e.Build(root), e, nil
}

// Normalize returns vals in a form that does not depend on execution
// order, as the entry describes.
func (e Entry) Normalize(vals []ir.IRValue) []ir.IRValue {
	out := slices.Clone(vals)
	if e.Deep {
		for i, v := range out {
			out[i] = sortNested(v)
		}
	}
	if !e.Ordered {
		ir.SortValues(out)
	}
	return out
}

func sortNested(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRArray:
		arr := make(ir.IRArray, len(val))
		for i, elem := range val {
			arr[i] = sortNested(elem)
		}
		ir.SortValues(arr)
		return arr
	case ir.IRMap:
		m := make(ir.IRMap, len(val))
		for i, entry := range val {
			m[i] = ir.IRMapEntry{Key: entry.Key, Value: sortNested(entry.Value)}
		}
		return m
	default:
		return v
	}
}

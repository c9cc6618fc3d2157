// Package projection turns a definition schema into the relational shape of
// its read model: one generated column per flattened property, plus indexes.
//
// Everything here is a pure function of the schema document.
package projection

import (
	"strings"

	"schemaregistry/pkg/jsonvalue"
)

// ColumnType is the logical type of a flattened attribute.
type ColumnType string

const (
	Text        ColumnType = "TEXT"
	Integer     ColumnType = "INTEGER"
	Numeric     ColumnType = "NUMERIC"
	Boolean     ColumnType = "BOOLEAN"
	Timestamptz ColumnType = "TIMESTAMPTZ"
	JSONB       ColumnType = "JSONB"
)

// RootColumn holds the entity body in every projection table.
const RootColumn = "entity_data"

const (
	shallowDepth = 3
	refDepth     = 5
	refPrefix    = "#/definitions/"
)

// Attribute is one flattened schema leaf.
type Attribute struct {
	// Name is the lowercase, underscore-joined property path.
	Name string
	// Type is the logical column type. Generated columns are physically TEXT
	// unless Type is JSONB.
	Type ColumnType
	// Expression extracts the value from RootColumn without any cast.
	Expression string
}

// MaxDepth is 5 for schemas carrying top-level definitions and 3 otherwise.
func MaxDepth(schema jsonvalue.Value) int {
	if defs, ok := schema.Get("definitions"); ok && defs.IsObject() {
		return refDepth
	}
	return shallowDepth
}

// Flatten walks the schema's properties depth first, in document order.
func Flatten(schema jsonvalue.Value) []Attribute {
	defs, _ := schema.Get("definitions")
	w := walker{defs: defs, max: MaxDepth(schema)}
	props, _ := schema.Get("properties")
	w.properties(props, nil, 1)
	return w.out
}

type walker struct {
	defs jsonvalue.Value
	max  int
	out  []Attribute
}

func (w *walker) properties(props jsonvalue.Value, path []string, depth int) {
	for _, m := range props.Members() {
		w.node(m.Value, appendPath(path, m.Key), depth)
	}
}

func (w *walker) node(node jsonvalue.Value, path []string, depth int) {
	if target, ok := w.resolve(node); ok {
		if depth >= w.max {
			w.leaf(path, JSONB)
			return
		}
		if props, ok := target.Get("properties"); ok && props.IsObject() && props.Len() > 0 {
			w.properties(props, path, depth+1)
			return
		}
		// a reference to a scalar or array definition stands for the
		// definition itself; the extra level bounds reference chains
		w.node(target, path, depth+1)
		return
	}

	switch typeOf(node) {
	case "object":
		props, ok := node.Get("properties")
		if depth < w.max && ok && props.IsObject() && props.Len() > 0 {
			w.properties(props, path, depth+1)
			return
		}
		w.leaf(path, JSONB)
	case "array":
		items, _ := node.Get("items")
		target, ok := w.resolve(items)
		if !ok {
			w.leaf(path, JSONB)
			return
		}
		props, hasProps := target.Get("properties")
		if depth >= w.max || !hasProps || !props.IsObject() {
			w.leaf(path, JSONB)
			return
		}
		w.properties(props, path, depth+1)
	default:
		w.leaf(path, scalarType(node))
	}
}

// resolve follows a local "#/definitions/<Name>" reference.
func (w *walker) resolve(node jsonvalue.Value) (jsonvalue.Value, bool) {
	ref, ok := node.GetString("$ref")
	if !ok {
		return jsonvalue.Value{}, false
	}
	name, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || name == "" {
		return jsonvalue.Value{}, false
	}
	return w.defs.Get(name)
}

func (w *walker) leaf(path []string, typ ColumnType) {
	w.out = append(w.out, Attribute{
		Name:       attributeName(path),
		Type:       typ,
		Expression: expression(path, typ == JSONB),
	})
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// typeOf returns the declared type, taking the first non-null entry of a
// type list.
func typeOf(node jsonvalue.Value) string {
	t, ok := node.Get("type")
	if !ok {
		return ""
	}
	if s, ok := t.AsString(); ok {
		return s
	}
	for _, e := range t.Elems() {
		if s, ok := e.AsString(); ok && s != "null" {
			return s
		}
	}
	return ""
}

func scalarType(node jsonvalue.Value) ColumnType {
	switch typeOf(node) {
	case "string":
		format, _ := node.GetString("format")
		if format == "date" || format == "date-time" {
			return Timestamptz
		}
		return Text
	case "integer":
		return Integer
	case "number":
		return Numeric
	case "boolean":
		return Boolean
	default:
		return Text
	}
}

func attributeName(path []string) string {
	return strings.ToLower(strings.Join(path, "_"))
}

// expression builds entity_data -> 'a' -> 'b' ->> 'c'. JSONB leaves end in
// -> so the column keeps the JSON value.
func expression(path []string, jsonLeaf bool) string {
	var sb strings.Builder
	sb.WriteString(RootColumn)
	for i, seg := range path {
		if i == len(path)-1 && !jsonLeaf {
			sb.WriteString(" ->> ")
		} else {
			sb.WriteString(" -> ")
		}
		sb.WriteString(quoteLiteral(seg))
	}
	return sb.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

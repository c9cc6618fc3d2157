package projection

import (
	"fmt"
	"strings"

	"schemaregistry/pkg/jsonvalue"
)

// IndexStatements renders the CREATE INDEX statements declared by the
// schema's _osConfig, followed by one GIN index on entity_data.
func IndexStatements(schema jsonvalue.Value) ([]string, error) {
	title, err := titleOf(schema)
	if err != nil {
		return nil, err
	}
	return indexes(schema, TableName(title), Columns(Flatten(schema))), nil
}

// indexes matches configured fields against full attribute names; index and
// column identifiers are shortened only when rendered.
func indexes(schema jsonvalue.Value, table string, cols []Attribute) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var out []string
	for _, field := range configFields(schema, "indexFields") {
		for _, name := range MatchFields(field, names) {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
				Ident(Shorten("idx_"+table+"_"+name)), Ident(table), Ident(Shorten(name))))
		}
	}
	for _, field := range configFields(schema, "uniqueIndexFields") {
		for _, name := range MatchFields(field, names) {
			out = append(out, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s);",
				Ident(Shorten("uidx_"+table+"_"+name)), Ident(table), Ident(Shorten(name))))
		}
	}
	out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s);",
		Ident(Shorten("idx_"+table+"_"+RootColumn+"_gin")), Ident(table), RootColumn))
	return out
}

func configFields(schema jsonvalue.Value, key string) []string {
	list, ok := schema.Lookup("_osConfig", key)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range list.Elems() {
		if s, ok := e.AsString(); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchFields resolves a configured field name against column names: exact
// match first, then columns ending in "_<field>", then any column containing
// field. Every column of the first non-empty tier is returned.
func MatchFields(field string, columns []string) []string {
	field = strings.ToLower(strings.TrimSpace(field))
	tiers := []func(string) bool{
		func(c string) bool { return c == field },
		func(c string) bool { return strings.HasSuffix(c, "_"+field) },
		func(c string) bool { return strings.Contains(c, field) },
	}
	for _, match := range tiers {
		var hits []string
		for _, c := range columns {
			if match(c) {
				hits = append(hits, c)
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}

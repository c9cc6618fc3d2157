package projection

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"

	"schemaregistry/pkg/jsonvalue"
)

// ErrMissingTitle is returned when a schema cannot name its table.
var ErrMissingTitle = errors.New("Schema must have a 'title' field")

// TableSuffix is appended to the lowercased title.
const TableSuffix = "_projection"

// SystemColumn is a column populated from event metadata rather than the body.
type SystemColumn struct {
	Name       string
	Definition string
}

// SystemColumns precede entity_data in every projection table.
var SystemColumns = []SystemColumn{
	{"id", "UUID PRIMARY KEY"},
	{"entity_type", "TEXT NOT NULL"},
	{"created_by", "TEXT"},
	{"created_at", "TIMESTAMPTZ NOT NULL"},
	{"registry_def_id", "UUID NOT NULL"},
	{"registry_def_version", "BIGINT NOT NULL"},
	{"version", "BIGINT NOT NULL"},
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Ident renders an identifier, quoting it only when it is not a plain
// lowercase name.
func Ident(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return pq.QuoteIdentifier(name)
}

// MaxIdentLength is the longest identifier Postgres keeps (NAMEDATALEN - 1).
const MaxIdentLength = 63

// Shorten returns name unchanged when it fits in MaxIdentLength bytes.
// Longer names keep a prefix and end in "_" plus eight hex digits of the
// full name's SHA-256, so distinct long names stay distinct.
func Shorten(name string) string {
	if len(name) <= MaxIdentLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := "_" + hex.EncodeToString(sum[:4])
	cut := MaxIdentLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}

// TableName is lowercase(title) + "_projection", shortened to fit.
func TableName(title string) string {
	return Shorten(strings.ToLower(strings.TrimSpace(title)) + TableSuffix)
}

func titleOf(schema jsonvalue.Value) (string, error) {
	title, ok := schema.GetString("title")
	if !ok || strings.TrimSpace(title) == "" {
		return "", ErrMissingTitle
	}
	return title, nil
}

// Column is the attribute's physical column name.
func (a Attribute) Column() string { return Shorten(a.Name) }

// Columns returns the attributes that become generated columns: the first
// attribute of each column name, skipping names taken by system columns.
func Columns(attrs []Attribute) []Attribute {
	taken := map[string]bool{RootColumn: true}
	for _, c := range SystemColumns {
		taken[c.Name] = true
	}
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		if a.Name == "" || taken[a.Column()] {
			continue
		}
		taken[a.Column()] = true
		out = append(out, a)
	}
	return out
}

// CreateTableStatement renders the projection table for schema.
func CreateTableStatement(schema jsonvalue.Value) (string, error) {
	title, err := titleOf(schema)
	if err != nil {
		return "", err
	}
	return createTable(TableName(title), Columns(Flatten(schema))), nil
}

func createTable(table string, cols []Attribute) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", Ident(table))
	for _, c := range SystemColumns {
		fmt.Fprintf(&sb, "    %s %s,\n", c.Name, c.Definition)
	}
	sb.WriteString("    " + RootColumn + " JSONB NOT NULL")
	for _, a := range cols {
		physical := Text
		if a.Type == JSONB {
			physical = JSONB
		}
		fmt.Fprintf(&sb, ",\n    %s %s GENERATED ALWAYS AS (%s) STORED", Ident(a.Column()), physical, a.Expression)
	}
	sb.WriteString("\n);")
	return sb.String()
}

// Synthesis is the full DDL for one schema.
type Synthesis struct {
	Table       string
	Attributes  []Attribute
	CreateTable string
	Indexes     []string
}

// Statements returns CREATE TABLE followed by the index statements.
func (s *Synthesis) Statements() []string {
	return append([]string{s.CreateTable}, s.Indexes...)
}

// Synthesize flattens schema once and renders every statement.
func Synthesize(schema jsonvalue.Value) (*Synthesis, error) {
	title, err := titleOf(schema)
	if err != nil {
		return nil, err
	}
	table := TableName(title)
	attrs := Flatten(schema)
	cols := Columns(attrs)
	return &Synthesis{
		Table:       table,
		Attributes:  attrs,
		CreateTable: createTable(table, cols),
		Indexes:     indexes(schema, table, cols),
	}, nil
}

// SynthesizeText parses schema text and synthesizes it.
func SynthesizeText(text string) (*Synthesis, error) {
	doc, err := jsonvalue.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return Synthesize(doc)
}

// Package schema compiles definition schemas as JSON Schema draft-07 and
// validates entity bodies against them.
//
// References resolve only inside the schema document itself: no loader is
// registered for any URL scheme, so a $ref to another document fails to
// compile. The draft-07 metaschema is built into the compiler.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"schemaregistry/pkg/jsonvalue"
)

const resourceURL = "https://schemaregistry.local/definition.json"

// ProblemPrefix starts every schema problem string.
const ProblemPrefix = "Invalid Schema: "

// ErrEmptySchema is reported for blank text or an object with no members.
var ErrEmptySchema = errors.New("Schema is empty")

var printer = message.NewPrinter(language.English)

// CompileError lists every reason a schema text failed to compile.
type CompileError struct {
	Problems []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Compiled is a schema ready for validation. It is safe for concurrent use.
type Compiled struct {
	doc    jsonvalue.Value
	schema *jsonschema.Schema
}

// Document returns the schema as an ordered JSON value.
func (c *Compiled) Document() jsonvalue.Value { return c.doc }

// Compile parses and compiles schema text. A returned error is always a
// *CompileError.
func Compile(text string) (*Compiled, error) {
	if isBlank(text) {
		return nil, problems(ErrEmptySchema.Error())
	}
	doc, err := jsonvalue.ParseString(text)
	if err != nil {
		return nil, problems(fmt.Sprintf("malformed JSON: %v", err))
	}
	if doc.Kind() != jsonvalue.Object {
		return nil, problems(fmt.Sprintf("schema must be a JSON object, got %s", doc.Kind()))
	}
	if doc.Len() == 0 {
		return nil, problems(ErrEmptySchema.Error())
	}

	raw, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, problems(fmt.Sprintf("malformed JSON: %v", err))
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	c.AssertFormat()
	c.UseLoader(jsonschema.SchemeURLLoader{})
	if err := c.AddResource(resourceURL, raw); err != nil {
		return nil, problems(err.Error())
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, compileProblems(err)
	}
	return &Compiled{doc: doc, schema: compiled}, nil
}

// Problems compiles text and returns its problems, each prefixed with
// ProblemPrefix. A compilable schema yields nil.
func Problems(text string) []string {
	_, err := Compile(text)
	if err == nil {
		return nil
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Problems
	}
	return []string{ProblemPrefix + err.Error()}
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func problems(msgs ...string) *CompileError {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = ProblemPrefix + m
	}
	return &CompileError{Problems: out}
}

func compileProblems(err error) *CompileError {
	var sve *jsonschema.SchemaValidationError
	if errors.As(err, &sve) {
		var ve *jsonschema.ValidationError
		if errors.As(sve.Err, &ve) {
			var msgs []string
			for _, leaf := range leaves(ve) {
				msgs = append(msgs, fmt.Sprintf("%s: %s", pointer(leaf.InstanceLocation), leaf.ErrorKind.LocalizedString(printer)))
			}
			sort.Strings(msgs)
			return problems(msgs...)
		}
	}
	return problems(err.Error())
}

// Violation is one reason an instance does not conform.
type Violation struct {
	// Location is the JSON pointer of the offending value ("/" for the root).
	Location string
	// Field is the property the violation is about: the last location segment,
	// or the missing property name for required violations.
	Field string
	// Value is the offending value rendered as JSON. Empty for required
	// violations, where the value is absent.
	Value   string
	Message string
}

func (v Violation) String() string {
	if v.Value == "" {
		return fmt.Sprintf("%s: %s", v.Location, v.Message)
	}
	return fmt.Sprintf("%s: %s: %s", v.Location, v.Value, v.Message)
}

// Validate checks instance against the schema. A conforming instance yields
// an empty slice.
func (c *Compiled) Validate(instance jsonvalue.Value) []Violation {
	err := c.schema.Validate(instance.Interface())
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Location: "/", Message: err.Error()}}
	}

	var out []Violation
	for _, leaf := range leaves(ve) {
		out = append(out, violationFor(instance, leaf)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func violationFor(instance jsonvalue.Value, leaf *jsonschema.ValidationError) []Violation {
	loc := pointer(leaf.InstanceLocation)
	msg := leaf.ErrorKind.LocalizedString(printer)

	if req, ok := leaf.ErrorKind.(*kind.Required); ok {
		out := make([]Violation, 0, len(req.Missing))
		for _, name := range req.Missing {
			out = append(out, Violation{
				Location: loc,
				Field:    name,
				Message:  fmt.Sprintf("missing property '%s'", name),
			})
		}
		return out
	}

	v := Violation{Location: loc, Message: msg}
	if n := len(leaf.InstanceLocation); n > 0 {
		v.Field = leaf.InstanceLocation[n-1]
	}
	if val, ok := at(instance, leaf.InstanceLocation); ok {
		v.Value = val.String()
	}
	return []Violation{v}
}

// leaves returns the most specific errors of a validation error tree.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func at(v jsonvalue.Value, path []string) (jsonvalue.Value, bool) {
	cur := v
	for _, seg := range path {
		switch cur.Kind() {
		case jsonvalue.Object:
			next, ok := cur.Get(seg)
			if !ok {
				return jsonvalue.Value{}, false
			}
			cur = next
		case jsonvalue.Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= cur.Len() {
				return jsonvalue.Value{}, false
			}
			cur = cur.Elems()[i]
		default:
			return jsonvalue.Value{}, false
		}
	}
	return cur, true
}

func pointer(path []string) string {
	if len(path) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, seg := range path {
		sb.WriteByte('/')
		seg = strings.ReplaceAll(seg, "~", "~0")
		sb.WriteString(strings.ReplaceAll(seg, "/", "~1"))
	}
	return sb.String()
}

package jsonvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromYAML parses a single YAML document into a Value, keeping mapping key
// order. Mapping keys must be scalars.
func FromYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Value{}, fmt.Errorf("parse yaml: empty document")
	}
	return fromNode(doc.Content[0])
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		members := make([]Member, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: mapping key must be a scalar", k.Line)
			}
			v, err := fromNode(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			members = append(members, Member{Key: k.Value, Value: v})
		}
		return ObjectValue(members...), nil
	case yaml.SequenceNode:
		elems := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, v)
		}
		return ArrayValue(elems...), nil
	case yaml.ScalarNode:
		return scalar(n)
	}
	return Value{}, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

func scalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return NullValue(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case "!!int":
		if json.Valid([]byte(n.Value)) {
			return NumberValue(json.Number(n.Value)), nil
		}
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return NumberValue(json.Number(strconv.FormatInt(i, 10))), nil
	case "!!float":
		if json.Valid([]byte(n.Value)) {
			return NumberValue(json.Number(n.Value)), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return Value{}, fmt.Errorf("line %d: %s has no JSON form", n.Line, n.Value)
		}
		return NumberValue(json.Number(strconv.FormatFloat(f, 'g', -1, 64))), nil
	default:
		return StringValue(n.Value), nil
	}
}

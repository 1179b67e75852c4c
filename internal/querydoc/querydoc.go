// Package querydoc reads query documents: a portable description of a
// query, and optionally entities to insert, written in YAML, JSON or CUE.
//
//	entity: person
//	select: [name, age]
//	where:
//	  and:
//	    - gte: {age: 18}
//	    - or:
//	        - eq: {city: Assis}
//	        - like: {name: "Ot%"}
//	    - not: {eq: {status: closed}}
//	sort: ["age desc", name]
//	limit: 10
//	insert:
//	  - {_id: p1, name: Otavio, age: 30}
//
// Each condition node is a map with exactly one operator key. Leaf
// operators (eq gt gte lt lte in like) take a map with exactly one field;
// not takes a node; and and or take a list of nodes.
package querydoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("%s: unknown document format %q", path, filepath.Ext(path))
}

// Document is a parsed query document.
type Document struct {
	Entity string
	Select []string
	Where  queryir.Condition
	Sorts  []queryir.Sort
	Limit  uint64
	Skip   uint64
	Insert []*ir.Entity
}

// Query builds the validated query the document describes.
func (d *Document) Query() (queryir.Query, error) {
	return queryir.Select(d.Select...).
		From(d.Entity).
		Where(d.Where).
		OrderBy(d.Sorts...).
		Limit(d.Limit).
		Skip(d.Skip).
		Build()
}

// Delete builds a delete query over the document's entity and condition.
func (d *Document) Delete() (queryir.DeleteQuery, error) {
	return queryir.Delete().From(d.Entity).Where(d.Where).Build()
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a document in the given format.
func Parse(data []byte, format Format) (*Document, error) {
	var tree map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if err := decodeJSON(data, &tree); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case FormatCUE:
		value := cuecontext.New().CompileBytes(data)
		if err := value.Err(); err != nil {
			return nil, fmt.Errorf("parse cue: %w", err)
		}
		exported, err := value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("export cue: %w", err)
		}
		if err := decodeJSON(exported, &tree); err != nil {
			return nil, fmt.Errorf("parse cue: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}
	if tree == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return fromTree(tree)
}

// decodeJSON keeps numbers exact until normalize decides their type.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

var documentKeys = map[string]bool{
	"entity": true, "select": true, "where": true, "sort": true,
	"limit": true, "skip": true, "insert": true,
}

func fromTree(tree map[string]any) (*Document, error) {
	for _, k := range ir.SortedKeys(tree) {
		if !documentKeys[k] {
			return nil, fmt.Errorf("unknown key %q", k)
		}
	}

	doc := &Document{}
	entity, ok := tree["entity"].(string)
	if !ok || entity == "" {
		return nil, fmt.Errorf("entity: required string")
	}
	doc.Entity = entity

	var err error
	if doc.Select, err = stringList("select", tree["select"]); err != nil {
		return nil, err
	}
	if w, ok := tree["where"]; ok {
		if doc.Where, err = condition("where", w); err != nil {
			return nil, err
		}
	}
	if doc.Sorts, err = sorts(tree["sort"]); err != nil {
		return nil, err
	}
	if doc.Limit, err = count("limit", tree["limit"]); err != nil {
		return nil, err
	}
	if doc.Skip, err = count("skip", tree["skip"]); err != nil {
		return nil, err
	}
	if doc.Insert, err = entities(entity, tree["insert"]); err != nil {
		return nil, err
	}
	return doc, nil
}

func condition(path string, node any) (queryir.Condition, error) {
	m, ok := node.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("%s: condition must be a map with one operator", path)
	}
	op, arg := only(m)
	path += "." + op

	switch op {
	case "not":
		child, err := condition(path, arg)
		if err != nil {
			return nil, err
		}
		return queryir.Negate(child), nil
	case "and", "or":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a list of conditions", path)
		}
		children := make([]queryir.Condition, len(list))
		for i, item := range list {
			child, err := condition(path+"["+strconv.Itoa(i)+"]", item)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		// Arity is checked when the query is built.
		if op == "and" {
			return queryir.And{Conditions: children}, nil
		}
		return queryir.Or{Conditions: children}, nil
	}

	fields, ok := arg.(map[string]any)
	if !ok || len(fields) != 1 {
		return nil, fmt.Errorf("%s: expected a map with one field", path)
	}
	field, value := only(fields)
	value = normalize(value)

	switch op {
	case "eq":
		return queryir.Eq(field, value), nil
	case "gt":
		return queryir.Gt(field, value), nil
	case "gte":
		return queryir.Gte(field, value), nil
	case "lt":
		return queryir.Lt(field, value), nil
	case "lte":
		return queryir.Lte(field, value), nil
	case "in":
		if _, ok := value.([]any); !ok {
			return nil, fmt.Errorf("%s: expected a list of values", path)
		}
		return queryir.InList(field, value), nil
	case "like":
		pattern, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s: pattern must be a string", path)
		}
		return queryir.Match(field, pattern), nil
	}
	return nil, fmt.Errorf("%s: unknown operator", path)
}

// only returns the sole entry of a single-key map.
func only(m map[string]any) (string, any) {
	for k, v := range m {
		return k, v
	}
	return "", nil
}

// sorts accepts "field", "field desc" and {field: f, order: desc}.
func sorts(node any) ([]queryir.Sort, error) {
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		list = []any{node}
	}
	out := make([]queryir.Sort, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("sort[%d]", i)
		var field, order string
		switch v := item.(type) {
		case string:
			parts := strings.Fields(v)
			if len(parts) == 0 || len(parts) > 2 {
				return nil, fmt.Errorf("%s: expected \"field\" or \"field asc|desc\", got %q", path, v)
			}
			field = parts[0]
			if len(parts) == 2 {
				order = parts[1]
			}
		case map[string]any:
			field, _ = v["field"].(string)
			order, _ = v["order"].(string)
			if field == "" {
				return nil, fmt.Errorf("%s: field is required", path)
			}
		default:
			return nil, fmt.Errorf("%s: unsupported sort %v", path, item)
		}
		switch strings.ToLower(order) {
		case "", "asc":
			out = append(out, queryir.Asc(field))
		case "desc":
			out = append(out, queryir.Desc(field))
		default:
			return nil, fmt.Errorf("%s: unknown order %q", path, order)
		}
	}
	return out, nil
}

func stringList(path string, node any) ([]string, error) {
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of strings", path)
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected a string, got %v", path, i, item)
		}
		out[i] = s
	}
	return out, nil
}

func count(path string, node any) (uint64, error) {
	if node == nil {
		return 0, nil
	}
	switch n := normalize(node).(type) {
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	case uint64:
		return n, nil
	}
	return 0, fmt.Errorf("%s: expected a non-negative integer, got %v", path, node)
}

func entities(name string, node any) ([]*ir.Entity, error) {
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("insert: expected a list of records")
	}
	codec := ir.NewCodec(nil)
	out := make([]*ir.Entity, len(list))
	for i, item := range list {
		record, ok := normalize(item).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("insert[%d]: expected a map", i)
		}
		e, err := codec.FromNative(name, record)
		if err != nil {
			return nil, fmt.Errorf("insert[%d]: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// normalize turns json.Number into int64 or float64 and widens the integer
// types YAML produces.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return string(val)
	case int:
		return int64(val)
	case uint64:
		if val <= 1<<63-1 {
			return int64(val)
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

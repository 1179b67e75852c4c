package querydynamo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Expression is a filter expression with its placeholders.
type Expression struct {
	Filter string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// builder assigns #nN name and :vN value placeholders in the order they are
// first used, so identical conditions compile identically.
type builder struct {
	c      *Compiler
	sb     strings.Builder
	names  map[string]string // placeholder -> attribute
	byName map[string]string // attribute -> placeholder
	values map[string]types.AttributeValue
}

func newBuilder(c *Compiler) *builder {
	return &builder{
		c:      c,
		names:  map[string]string{},
		byName: map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

// take returns and resets the text written so far.
func (b *builder) take() string {
	s := b.sb.String()
	b.sb.Reset()
	return s
}

func (b *builder) expression() Expression {
	return Expression{Filter: b.take(), Names: b.names, Values: b.values}
}

// name returns the placeholder for an attribute path. Dotted paths address
// nested attributes one segment at a time.
func (b *builder) name(attr string) string {
	segments := strings.Split(attr, ".")
	for i, seg := range segments {
		segments[i] = b.segment(seg)
	}
	return strings.Join(segments, ".")
}

func (b *builder) segment(seg string) string {
	if placeholder, ok := b.byName[seg]; ok {
		return placeholder
	}
	placeholder := "#n" + strconv.Itoa(len(b.names))
	b.names[placeholder] = seg
	b.byName[seg] = placeholder
	return placeholder
}

func (b *builder) value(v ir.Value) (string, error) {
	av, err := attributevalue.Marshal(b.c.codec.NativeValue(v))
	if err != nil {
		return "", queryir.Invalid(Backend, "value", "marshal %s: %v", ir.String(v), err)
	}
	placeholder := ":v" + strconv.Itoa(len(b.values))
	b.values[placeholder] = av
	return placeholder, nil
}

func (b *builder) condition(cond queryir.Condition, nested bool) error {
	if op, el, ok := queryir.Leaf(cond); ok {
		return b.leaf(op, el)
	}

	switch v := cond.(type) {
	case queryir.Not:
		b.sb.WriteString("NOT (")
		if err := b.condition(v.Condition, false); err != nil {
			return err
		}
		b.sb.WriteString(")")
	case queryir.And:
		return b.join(v.Conditions, " AND ", nested)
	case queryir.Or:
		return b.join(v.Conditions, " OR ", nested)
	}
	return nil
}

func (b *builder) join(cs []queryir.Condition, sep string, nested bool) error {
	if nested {
		b.sb.WriteString("(")
	}
	for i, child := range cs {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		if err := b.condition(child, true); err != nil {
			return err
		}
	}
	if nested {
		b.sb.WriteString(")")
	}
	return nil
}

func (b *builder) leaf(op queryir.Operator, el ir.Element) error {
	name := b.name(el.Name())

	switch op {
	case queryir.OpIn:
		list, _ := el.Value().(ir.List)
		placeholders := make([]string, len(list))
		for i, item := range list {
			p, err := b.value(item)
			if err != nil {
				return err
			}
			placeholders[i] = p
		}
		b.sb.WriteString(name + " IN (" + strings.Join(placeholders, ", ") + ")")
		return nil

	case queryir.OpLike:
		pattern, _ := b.c.codec.NativeValue(el.Value()).(string)
		shape, literal := queryir.ClassifyLike(pattern)
		var format string
		switch shape {
		case queryir.LikeExact:
			format = "%s = %s"
		case queryir.LikePrefix:
			format = "begins_with(%s, %s)"
		case queryir.LikeContains:
			format = "contains(%s, %s)"
		default:
			return queryir.Unsupported(Backend, "like pattern "+strconv.Quote(pattern))
		}
		p, err := b.value(ir.NewScalar(literal))
		if err != nil {
			return err
		}
		b.sb.WriteString(fmt.Sprintf(format, name, p))
		return nil

	case queryir.OpEquals:
		if s, ok := el.Value().(ir.Scalar); ok && s.IsNull() {
			b.sb.WriteString("attribute_not_exists(" + name + ")")
			return nil
		}
	}

	p, err := b.value(el.Value())
	if err != nil {
		return err
	}
	b.sb.WriteString(name + comparators[op] + p)
	return nil
}

// Package querydynamo compiles queryir conditions and queries into
// DynamoDB Scan inputs with filter expressions.
//
// DynamoDB evaluates filters after reading, so only the shapes a filter
// expression can state are accepted: LIKE is limited to exact, prefix and
// contains patterns, and results cannot be sorted or offset.
package querydynamo

import (
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors and cursors.
const Backend = "dynamodb"

// Config controls table conventions.
type Config struct {
	// Table is a shared table holding every entity. When empty each entity
	// lives in a table of its own name and no discriminator is written.
	Table string `mapstructure:"table"`

	// EntityAttribute holds the entity name in a shared table.
	EntityAttribute string `mapstructure:"entity_attribute"`

	// KeyAttribute is the partition key.
	KeyAttribute string `mapstructure:"key_attribute"`

	// ConsistentRead requests strongly consistent scans.
	ConsistentRead bool `mapstructure:"consistent_read"`
}

// DefaultConfig returns table-per-entity conventions.
func DefaultConfig() Config {
	return Config{
		EntityAttribute: "@entity",
		KeyAttribute:    "_id",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.EntityAttribute == "" {
		c.EntityAttribute = def.EntityAttribute
	}
	if c.KeyAttribute == "" {
		c.KeyAttribute = def.KeyAttribute
	}
}

var capabilities = queryir.Capabilities{
	Backend: Backend,
	Or:      true,
	Not:     true,
	In:      true,
	Like:    true,
	Nested:  true,
	Skip:    false,
	Sort:    false,
	Cursor:  true,
}

var comparators = map[queryir.Operator]string{
	queryir.OpEquals:        " = ",
	queryir.OpGreaterThan:   " > ",
	queryir.OpGreaterEquals: " >= ",
	queryir.OpLesserThan:    " < ",
	queryir.OpLesserEquals:  " <= ",
}

// Scan is a compiled read. Keys lists items a manager can fetch with
// GetItem; ScanInput is nil when the keys cover the whole condition.
type Scan struct {
	*dynamodb.ScanInput
	Table string
	Keys  []map[string]types.AttributeValue
}

// HasScan reports whether the compiled read needs a table scan.
func (s Scan) HasScan() bool { return s.ScanInput != nil }

// Compiler compiles queryir values to DynamoDB inputs. It is safe for
// concurrent use.
type Compiler struct {
	cfg   Config
	codec *ir.Codec
}

// New creates a compiler. A nil codec uses the default writers.
func New(cfg Config, codec *ir.Codec) *Compiler {
	cfg.validate()
	if codec == nil {
		codec = ir.NewCodec(nil)
	}
	return &Compiler{cfg: cfg, codec: codec}
}

// Capabilities reports what filter expressions can state.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// KeyAttribute returns the partition key name.
func (c *Compiler) KeyAttribute() string { return c.cfg.KeyAttribute }

// Compile converts a query to a scan. Key predicates are split out for
// unbounded reads without a cursor.
func (c *Compiler) Compile(q queryir.Query) (Scan, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Scan{}, err
	}

	scan := Scan{Table: c.table(q.Entity)}
	cond := q.Condition
	if cond != nil && q.Limit == 0 && q.Cursor == nil {
		if split, ok := queryir.SplitKeys(cond, c.cfg.KeyAttribute); ok {
			keys, err := c.keys(split.Keys)
			if err != nil {
				return Scan{}, err
			}
			scan.Keys = keys
			if split.Rest == nil {
				return scan, nil
			}
			cond = split.Rest
		}
	}

	input, err := c.scanInput(q.Entity, cond, q.Fields)
	if err != nil {
		return Scan{}, err
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(min(q.Limit, math.MaxInt32)))
	}
	if q.Cursor != nil {
		start, ok := q.Cursor.(StartKey)
		if !ok {
			return Scan{}, queryir.Foreign(Backend, q.Cursor)
		}
		input.ExclusiveStartKey = start.Key
	}
	scan.ScanInput = input
	return scan, nil
}

// CompilePredicate converts a condition to a filter expression with its
// name and value placeholders.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (Expression, error) {
	if cond == nil {
		return Expression{}, queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return Expression{}, err
	}
	b := newBuilder(c)
	if err := b.condition(cond, false); err != nil {
		return Expression{}, err
	}
	return b.expression(), nil
}

// CompileDelete converts a delete query to the scan that finds the keys to
// remove. Only the key attribute is projected.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Scan, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Scan{}, err
	}

	scan := Scan{Table: c.table(d.Entity)}
	cond := d.Condition
	if cond != nil {
		if split, ok := queryir.SplitKeys(cond, c.cfg.KeyAttribute); ok {
			keys, err := c.keys(split.Keys)
			if err != nil {
				return Scan{}, err
			}
			scan.Keys = keys
			if split.Rest == nil {
				return scan, nil
			}
			cond = split.Rest
		}
	}

	input, err := c.scanInput(d.Entity, cond, []string{c.cfg.KeyAttribute})
	if err != nil {
		return Scan{}, err
	}
	scan.ScanInput = input
	return scan, nil
}

// CompileInsert converts an entity into a PutItem input. The entity must
// carry the key attribute.
func (c *Compiler) CompileInsert(e *ir.Entity) (*dynamodb.PutItemInput, error) {
	if e == nil {
		return nil, queryir.Required(Backend, "entity")
	}
	if _, ok := e.Find(c.cfg.KeyAttribute); !ok {
		return nil, queryir.Required(Backend, c.cfg.KeyAttribute+" element")
	}
	doc, err := c.codec.ToNative(e)
	if err != nil {
		return nil, err
	}
	if c.cfg.Table != "" {
		doc[c.cfg.EntityAttribute] = e.Name()
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, queryir.Invalid(Backend, "insert", "marshal %s: %v", e.Name(), err)
	}
	return &dynamodb.PutItemInput{
		TableName: aws.String(c.table(e.Name())),
		Item:      item,
	}, nil
}

// GetItem returns the input that fetches one key split out by Compile.
func (c *Compiler) GetItem(entity string, key map[string]types.AttributeValue) *dynamodb.GetItemInput {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(c.table(entity)),
		Key:       key,
	}
	if c.cfg.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	return input
}

// DeleteItem returns the input that removes one key. In a shared table the
// delete is conditioned on the discriminator so another entity's item with
// the same key survives.
func (c *Compiler) DeleteItem(entity string, key map[string]types.AttributeValue) *dynamodb.DeleteItemInput {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table(entity)),
		Key:       key,
	}
	if c.cfg.Table != "" {
		input.ConditionExpression = aws.String("#e = :e")
		input.ExpressionAttributeNames = map[string]string{"#e": c.cfg.EntityAttribute}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: entity},
		}
	}
	return input
}

// Decode converts a returned item into an entity named name.
func (c *Compiler) Decode(name string, item map[string]types.AttributeValue) (*ir.Entity, error) {
	if item == nil {
		return nil, queryir.Required(Backend, "item")
	}
	var doc map[string]any
	err := attributevalue.UnmarshalMapWithOptions(item, &doc, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, queryir.Invalid(Backend, "decode", "unmarshal %s: %v", name, err)
	}
	if c.cfg.Table != "" {
		if stored, _ := doc[c.cfg.EntityAttribute].(string); stored != "" {
			name = stored
		}
		delete(doc, c.cfg.EntityAttribute)
	}
	native, _ := normalize(doc).(map[string]any)
	return c.codec.FromNative(name, native)
}

// Table returns the table an entity lives in.
func (c *Compiler) table(entity string) string {
	if c.cfg.Table != "" {
		return c.cfg.Table
	}
	return entity
}

func (c *Compiler) scanInput(entity string, cond queryir.Condition, fields []string) (*dynamodb.ScanInput, error) {
	b := newBuilder(c)
	var filters []string

	if c.cfg.Table != "" {
		name := b.name(c.cfg.EntityAttribute)
		value, err := b.value(ir.NewScalar(entity))
		if err != nil {
			return nil, err
		}
		filters = append(filters, name+" = "+value)
	}
	if cond != nil {
		if and, ok := cond.(queryir.And); ok {
			for _, child := range and.Conditions {
				if err := b.condition(child, true); err != nil {
					return nil, err
				}
				filters = append(filters, b.take())
			}
		} else {
			if err := b.condition(cond, len(filters) > 0); err != nil {
				return nil, err
			}
			filters = append(filters, b.take())
		}
	}

	input := &dynamodb.ScanInput{TableName: aws.String(c.table(entity))}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
	}
	if len(fields) > 0 {
		projection := []string{b.name(c.cfg.KeyAttribute)}
		for _, f := range fields {
			if f != c.cfg.KeyAttribute {
				projection = append(projection, b.name(f))
			}
		}
		input.ProjectionExpression = aws.String(strings.Join(projection, ", "))
	}
	if c.cfg.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	expr := b.expression()
	if len(expr.Names) > 0 {
		input.ExpressionAttributeNames = expr.Names
	}
	if len(expr.Values) > 0 {
		input.ExpressionAttributeValues = expr.Values
	}
	return input, nil
}

func (c *Compiler) keys(values []ir.Value) ([]map[string]types.AttributeValue, error) {
	out := make([]map[string]types.AttributeValue, 0, len(values))
	for _, v := range values {
		if _, ok := v.(ir.Scalar); !ok {
			return nil, queryir.Invalid(Backend, "key", "key must be a scalar, got %s", ir.String(v))
		}
		av, err := attributevalue.Marshal(c.codec.NativeValue(v))
		if err != nil {
			return nil, queryir.Invalid(Backend, "key", "marshal key %s: %v", ir.String(v), err)
		}
		out = append(out, map[string]types.AttributeValue{c.cfg.KeyAttribute: av})
	}
	return out, nil
}

// normalize turns decoded numbers into int64 when integral and float64
// otherwise.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	case attributevalue.Number:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n
		}
		f, err := val.Float64()
		if err != nil {
			return string(val)
		}
		return f
	}
	return v
}

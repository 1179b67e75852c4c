package backend

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/querybson"
	"github.com/roach88/polystore/internal/querycql"
	"github.com/roach88/polystore/internal/querydynamo"
	"github.com/roach88/polystore/internal/querymango"
	"github.com/roach88/polystore/internal/queryn1ql"
	"github.com/roach88/polystore/internal/querysolr"
	"github.com/roach88/polystore/internal/querysql"
)

// Rendered is a compiled form prepared for display: Text is the native
// statement as a store would receive it and Doc is a JSON-ready breakdown.
type Rendered struct {
	Text string
	Doc  map[string]any
}

// Render prepares any value returned by Compilers.Compile or
// Compilers.CompileDelete for display.
func Render(compiled any) (Rendered, error) {
	switch v := compiled.(type) {
	case querycql.Statement:
		doc := map[string]any{"cql": v.CQL, "params": v.Params, "fetch_size": int64(v.FetchSize)}
		if !v.PagingState.Empty() {
			doc["paging_state"] = v.PagingState.String()
		}
		return Rendered{Text: v.Inline(), Doc: doc}, nil

	case querymango.Request:
		data, err := v.MarshalJSON()
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Text: string(data), Doc: v.Native()}, nil

	case querysolr.Request:
		doc := map[string]any{}
		for k, vals := range v.Values() {
			doc[k] = vals[0]
		}
		return Rendered{Text: v.String(), Doc: doc}, nil

	case querysolr.DeleteRequest:
		data, err := v.MarshalJSON()
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Text: string(data), Doc: map[string]any{"delete": map[string]any{"query": v.Query}}}, nil

	case querybson.Find:
		filter, text, err := extJSON(v.Filter)
		if err != nil {
			return Rendered{}, err
		}
		doc := map[string]any{"collection": v.Collection, "filter": filter}
		if v.Options != nil {
			if v.Options.Sort != nil {
				if doc["sort"], _, err = extJSON(v.Options.Sort); err != nil {
					return Rendered{}, err
				}
			}
			if v.Options.Projection != nil {
				if doc["projection"], _, err = extJSON(v.Options.Projection); err != nil {
					return Rendered{}, err
				}
			}
			if v.Options.Limit != nil {
				doc["limit"] = *v.Options.Limit
			}
			if v.Options.Skip != nil {
				doc["skip"] = *v.Options.Skip
			}
		}
		return Rendered{Text: text, Doc: doc}, nil

	case querybson.Delete:
		filter, text, err := extJSON(v.Filter)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Text: text, Doc: map[string]any{"collection": v.Collection, "filter": filter}}, nil

	case queryn1ql.Statement:
		doc := map[string]any{"keyspace": v.Keyspace, "n1ql": v.N1QL, "params": v.Params}
		if len(v.Keys) > 0 {
			doc["keys"] = v.Keys
		}
		text := v.N1QL
		if !v.HasQuery() {
			text = fmt.Sprintf("KEYS %q", v.Keys)
		}
		return Rendered{Text: text, Doc: doc}, nil

	case querydynamo.Scan:
		return renderScan(v)

	case querysql.Statement:
		doc := map[string]any{"sql": v.SQL, "params": v.Params}
		if len(v.Fields) > 0 {
			doc["fields"] = v.Fields
		}
		return Rendered{Text: v.SQL, Doc: doc}, nil
	}
	return Rendered{}, fmt.Errorf("render: unsupported compiled type %T", compiled)
}

// extJSON renders a BSON value as relaxed extended JSON, returning both the
// decoded tree and the text.
func extJSON(v any) (any, string, error) {
	data, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return nil, "", fmt.Errorf("render bson: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, "", fmt.Errorf("render bson: %w", err)
	}
	return tree, string(data), nil
}

func renderScan(s querydynamo.Scan) (Rendered, error) {
	doc := map[string]any{"table": s.Table}
	if len(s.Keys) > 0 {
		keys := make([]any, len(s.Keys))
		for i, k := range s.Keys {
			native, err := attributes(k)
			if err != nil {
				return Rendered{}, err
			}
			keys[i] = native
		}
		doc["keys"] = keys
	}
	if !s.HasScan() {
		return Rendered{Text: "GetItem", Doc: doc}, nil
	}

	text := aws.ToString(s.FilterExpression)
	if text != "" {
		doc["filter"] = text
	}
	if s.ProjectionExpression != nil {
		doc["projection"] = aws.ToString(s.ProjectionExpression)
	}
	if len(s.ExpressionAttributeNames) > 0 {
		names := make(map[string]any, len(s.ExpressionAttributeNames))
		for k, v := range s.ExpressionAttributeNames {
			names[k] = v
		}
		doc["names"] = names
	}
	if len(s.ExpressionAttributeValues) > 0 {
		values, err := attributes(s.ExpressionAttributeValues)
		if err != nil {
			return Rendered{}, err
		}
		doc["values"] = values
	}
	if s.Limit != nil {
		doc["limit"] = int64(aws.ToInt32(s.Limit))
	}
	if text == "" {
		text = "Scan " + s.Table
	}
	return Rendered{Text: text, Doc: doc}, nil
}

func attributes(m map[string]types.AttributeValue) (map[string]any, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMap(m, &out); err != nil {
		return nil, fmt.Errorf("render attributes: %w", err)
	}
	return out, nil
}

// RenderJSON renders compiled as canonical JSON.
func RenderJSON(compiled any) ([]byte, error) {
	r, err := Render(compiled)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(normalizeDoc(r.Doc))
}

// normalizeDoc converts typed slices into []any so the canonical encoder
// accepts them.
func normalizeDoc(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeDoc(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeDoc(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeDoc(item)
		}
		return out
	}
	return v
}

package querydynamo

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/polystore/internal/ir"
)

// StartKey is the LastEvaluatedKey of one scan page, replayed as the
// ExclusiveStartKey of the next.
type StartKey struct {
	Key map[string]types.AttributeValue
}

func (k StartKey) Backend() string { return Backend }
func (k StartKey) Empty() bool     { return len(k.Key) == 0 }

// String renders the key as canonical JSON.
func (k StartKey) String() string {
	if k.Empty() {
		return ""
	}
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(k.Key, &doc); err != nil {
		return "<invalid start key>"
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "<invalid start key>"
	}
	return string(data)
}

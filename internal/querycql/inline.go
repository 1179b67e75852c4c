package querycql

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/roach88/polystore/internal/ir"
)

// Inline renders the statement with each ? replaced by its parameter as a
// CQL literal. The result is for logs and diagnostics; drivers should
// receive CQL and Params separately.
func (s Statement) Inline() string {
	var sb strings.Builder
	next := 0
	inQuote := false
	for i := 0; i < len(s.CQL); i++ {
		ch := s.CQL[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case ch == '?' && !inQuote && next < len(s.Params):
			writeLiteral(&sb, s.Params[next])
			next++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

func writeLiteral(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(val, "'", "''"))
		sb.WriteByte('\'')
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	case float64:
		sb.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case []byte:
		sb.WriteString("0x")
		sb.WriteString(hex.EncodeToString(val))
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeLiteral(sb, item)
		}
		sb.WriteByte(']')
	case map[string]any:
		sb.WriteByte('{')
		for i, k := range ir.SortedKeys(val) {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte(':')
			writeLiteral(sb, val[k])
		}
		sb.WriteByte('}')
	default:
		writeLiteral(sb, ir.String(ir.NewScalar(val)))
	}
}

package queryir

import (
	"regexp"
	"strings"
)

// LikeToRegex converts a LIKE pattern to an anchored regular expression:
// % becomes .*, _ becomes . and everything else is matched literally.
func LikeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	literal := strings.Builder{}
	flush := func() {
		if literal.Len() > 0 {
			sb.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}
	for _, r := range pattern {
		switch r {
		case '%':
			flush()
			sb.WriteString(".*")
		case '_':
			flush()
			sb.WriteByte('.')
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	sb.WriteByte('$')
	return sb.String()
}

// LikeShape classifies patterns that key-value stores can serve without a
// regular expression.
type LikeShape int

const (
	// LikeOther needs full pattern matching.
	LikeOther LikeShape = iota
	// LikeExact has no wildcards.
	LikeExact
	// LikePrefix is "abc%".
	LikePrefix
	// LikeContains is "%abc%".
	LikeContains
)

// ClassifyLike reports the shape of pattern and the literal text inside
// the wildcards.
func ClassifyLike(pattern string) (LikeShape, string) {
	if strings.ContainsRune(pattern, '_') {
		return LikeOther, ""
	}
	inner := strings.Trim(pattern, "%")
	if strings.ContainsRune(inner, '%') {
		return LikeOther, ""
	}
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%") && len(pattern) > 1
	switch {
	case !leading && !trailing:
		return LikeExact, inner
	case !leading && trailing:
		return LikePrefix, inner
	case leading && trailing && inner != "":
		return LikeContains, inner
	}
	return LikeOther, ""
}

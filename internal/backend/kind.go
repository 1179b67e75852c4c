// Package backend ties the per-store compilers and managers together: the
// closed set of store kinds, the manager contract, execution errors and
// dispatch of a query to the compiler for one kind.
package backend

import (
	"fmt"
	"strings"
)

// Kind identifies a store family.
type Kind int

const (
	Cassandra Kind = iota
	CouchDB
	Solr
	MongoDB
	N1QL
	DynamoDB
	SQLite
)

var kindNames = [...]string{
	Cassandra: "cassandra",
	CouchDB:   "couchdb",
	Solr:      "solr",
	MongoDB:   "mongodb",
	N1QL:      "n1ql",
	DynamoDB:  "dynamodb",
	SQLite:    "sqlite",
}

// String returns the kind's name as used in errors, config and flags.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind resolves a kind name, case-insensitively. "couchbase" is
// accepted for N1QL and "mongo" for MongoDB.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "couchbase":
		return N1QL, nil
	case "mongo":
		return MongoDB, nil
	}
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q (want one of %s)", s, strings.Join(kindNames[:], ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

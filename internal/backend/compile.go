package backend

import (
	"fmt"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/querybson"
	"github.com/roach88/polystore/internal/querycql"
	"github.com/roach88/polystore/internal/querydynamo"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/querymango"
	"github.com/roach88/polystore/internal/queryn1ql"
	"github.com/roach88/polystore/internal/querysolr"
	"github.com/roach88/polystore/internal/querysql"
)

// Options carries the compiler settings for every kind.
type Options struct {
	Cassandra querycql.Config    `mapstructure:"cassandra"`
	CouchDB   querymango.Config  `mapstructure:"couchdb"`
	Solr      querysolr.Config   `mapstructure:"solr"`
	MongoDB   querybson.Config   `mapstructure:"mongodb"`
	N1QL      queryn1ql.Config   `mapstructure:"n1ql"`
	DynamoDB  querydynamo.Config `mapstructure:"dynamodb"`
	SQLite    querysql.Config    `mapstructure:"sqlite"`
}

// DefaultOptions returns each compiler's default settings.
func DefaultOptions() Options {
	return Options{
		Cassandra: querycql.DefaultConfig(),
		CouchDB:   querymango.DefaultConfig(),
		Solr:      querysolr.DefaultConfig(),
		MongoDB:   querybson.DefaultConfig(),
		N1QL:      queryn1ql.DefaultConfig(),
		DynamoDB:  querydynamo.DefaultConfig(),
		SQLite:    querysql.DefaultConfig(),
	}
}

// Compilers holds one compiler per kind, sharing a codec.
type Compilers struct {
	Cassandra *querycql.Compiler
	CouchDB   *querymango.Compiler
	Solr      *querysolr.Compiler
	MongoDB   *querybson.Compiler
	N1QL      *queryn1ql.Compiler
	DynamoDB  *querydynamo.Compiler
	SQLite    *querysql.Compiler
}

// NewCompilers builds every compiler. A nil codec uses the default writers.
func NewCompilers(opts Options, codec *ir.Codec) *Compilers {
	if codec == nil {
		codec = ir.NewCodec(nil)
	}
	return &Compilers{
		Cassandra: querycql.New(opts.Cassandra, codec),
		CouchDB:   querymango.New(opts.CouchDB, codec),
		Solr:      querysolr.New(opts.Solr, codec),
		MongoDB:   querybson.New(opts.MongoDB, codec),
		N1QL:      queryn1ql.New(opts.N1QL, codec),
		DynamoDB:  querydynamo.New(opts.DynamoDB, codec),
		SQLite:    querysql.New(opts.SQLite, codec),
	}
}

// Capabilities reports what kind k can express.
func (c *Compilers) Capabilities(k Kind) (queryir.Capabilities, error) {
	switch k {
	case Cassandra:
		return c.Cassandra.Capabilities(), nil
	case CouchDB:
		return c.CouchDB.Capabilities(), nil
	case Solr:
		return c.Solr.Capabilities(), nil
	case MongoDB:
		return c.MongoDB.Capabilities(), nil
	case N1QL:
		return c.N1QL.Capabilities(), nil
	case DynamoDB:
		return c.DynamoDB.Capabilities(), nil
	case SQLite:
		return c.SQLite.Capabilities(), nil
	}
	return queryir.Capabilities{}, fmt.Errorf("capabilities: unknown backend %s", k)
}

// Compile compiles q for kind k. The concrete result type is the
// compiler's own: querycql.Statement, querymango.Request, querysolr.Request,
// querybson.Find, queryn1ql.Statement, querydynamo.Scan or
// querysql.Statement.
func (c *Compilers) Compile(k Kind, q queryir.Query) (any, error) {
	switch k {
	case Cassandra:
		return c.Cassandra.Compile(q)
	case CouchDB:
		return c.CouchDB.Compile(q)
	case Solr:
		return c.Solr.Compile(q)
	case MongoDB:
		return c.MongoDB.Compile(q)
	case N1QL:
		return c.N1QL.Compile(q)
	case DynamoDB:
		return c.DynamoDB.Compile(q)
	case SQLite:
		return c.SQLite.Compile(q)
	}
	return nil, fmt.Errorf("compile: unknown backend %s", k)
}

// CompileDelete compiles d for kind k.
func (c *Compilers) CompileDelete(k Kind, d queryir.DeleteQuery) (any, error) {
	switch k {
	case Cassandra:
		return c.Cassandra.CompileDelete(d)
	case CouchDB:
		return c.CouchDB.CompileDelete(d)
	case Solr:
		return c.Solr.CompileDelete(d)
	case MongoDB:
		return c.MongoDB.CompileDelete(d)
	case N1QL:
		return c.N1QL.CompileDelete(d)
	case DynamoDB:
		return c.DynamoDB.CompileDelete(d)
	case SQLite:
		return c.SQLite.CompileDelete(d)
	}
	return nil, fmt.Errorf("compile delete: unknown backend %s", k)
}

// Portability is the outcome of compiling one query for one kind.
type Portability struct {
	Kind Kind
	Err  error
}

// Check compiles q for every kind and reports which can run it.
func (c *Compilers) Check(q queryir.Query) []Portability {
	kinds := Kinds()
	out := make([]Portability, len(kinds))
	for i, k := range kinds {
		_, err := c.Compile(k, q)
		out[i] = Portability{Kind: k, Err: err}
	}
	return out
}

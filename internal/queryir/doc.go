// Package queryir provides the backend-agnostic condition and query model.
//
// A Condition is a sealed tree of leaf comparisons (Equals, GreaterThan,
// GreaterEquals, LesserThan, LesserEquals, In, Like), negation (Not) and
// n-ary connectives (And, Or). Each leaf carries one ir.Element naming the
// field and the operand.
//
// Query and DeleteQuery describe what to read or remove from one entity.
// Backend compilers live in the query<backend> packages and consume these
// types through exhaustive type switches:
//
//	switch c := cond.(type) {
//	case Equals:
//	    // field = value
//	case And:
//	    // every child holds
//	default:
//	    // impossible: the interface is sealed
//	}
//
// Capabilities describes, as data, which parts of the model a backend can
// express. Compilers consult it and raise an UNSUPPORTED_OPERATION
// CompileError instead of silently degrading a query.
package queryir

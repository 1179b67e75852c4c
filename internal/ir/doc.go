// Package ir provides the backend-agnostic record model for polystore.
//
// A record is an Entity: a named, ordered list of Elements whose names are
// unique. Each Element carries a Value, which is one of three shapes:
//
//   - Scalar: a single primitive (string, bool, int64, float64, []byte, nil)
//     or any value a Writer has not converted
//   - List: an ordered sequence of Values
//   - Nested: exactly one sub-record, itself a list of Elements
//
// A List of Nested values models a collection of sub-records. Scalars are
// coerced into backend-representable form by a Writers registry at the
// boundary where the Codec produces native trees.
//
// All other internal packages import ir; ir imports nothing internal.
package ir

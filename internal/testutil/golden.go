// Package testutil holds helpers shared by package tests: golden file
// comparison, deterministic identifiers and common entity fixtures.
package testutil

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/polystore/internal/ir"
)

// AssertGolden compares data with testdata/golden/{name}.golden in the
// calling package.
//
// To regenerate golden files, run:
//
//	go test ./internal/<package> -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// AssertGoldenJSON serializes v as canonical JSON and compares it with the
// golden file. Canonical form keeps golden files stable across map
// iteration orders.
func AssertGoldenJSON(t *testing.T, name string, v any) {
	t.Helper()

	data, err := ir.MarshalCanonical(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	AssertGolden(t, name, data)
}

package store

import (
	"testing"

	"github.com/claude/ingestd/internal/batch"
	"github.com/claude/ingestd/internal/model"
)

// TestVariantSpecsCoverAllVariants guards against a new model.Variant being
// added without a matching store mapping — WriteChunk would otherwise fail
// every row of that variant at runtime with no compile-time signal.
func TestVariantSpecsCoverAllVariants(t *testing.T) {
	for _, v := range model.AllVariants() {
		spec, ok := variantSpecs[v]
		if !ok {
			t.Fatalf("variantSpecs is missing an entry for %s", v)
		}
		if len(spec.columns) == 0 || spec.table == "" {
			t.Fatalf("variantSpecs entry for %s is incomplete: %+v", v, spec)
		}
		if len(spec.conflictColumns) == 0 {
			t.Fatalf("variantSpecs entry for %s has no conflict columns for ON CONFLICT DO NOTHING", v)
		}
	}
}

// TestParamsPerRowMatchesColumnWidth guards against batch.DefaultParamsPerRow
// drifting from the column lists here: chunk-cap derivation uses the former,
// WriteChunk uses the latter, and a mismatch would silently under- or
// over-estimate how close a chunk sits to the bound-parameter ceiling.
func TestParamsPerRowMatchesColumnWidth(t *testing.T) {
	paramsPerRow := batch.DefaultParamsPerRow()
	for _, v := range model.AllVariants() {
		spec, ok := variantSpecs[v]
		if !ok {
			t.Fatalf("variantSpecs is missing an entry for %s", v)
		}
		p, ok := paramsPerRow[v]
		if !ok {
			t.Fatalf("batch.DefaultParamsPerRow is missing an entry for %s", v)
		}
		if p != len(spec.columns) {
			t.Fatalf("variant %s: batch.DefaultParamsPerRow says %d params/row but variantSpecs has %d columns", v, p, len(spec.columns))
		}
	}
}

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilters(t *testing.T) {
	ev := NewEvent("a:b", map[string]any{"n": 3},
		WithSource("dock"),
		WithMetadata("priority", "high"),
	)

	tests := []struct {
		name   string
		filter FilterFunc
		want   bool
	}{
		{"source match", FilterBySource("dock"), true},
		{"source mismatch", FilterBySource("tray"), false},
		{"sources", FilterBySources("tray", "dock"), true},
		{"exclude source", FilterExcludeSource("dock"), false},
		{"metadata match", FilterByMetadata("priority", "high"), true},
		{"metadata mismatch", FilterByMetadata("priority", "low"), false},
		{"metadata missing", FilterByMetadata("other", "x"), false},
		{"has metadata", FilterHasMetadata("priority"), true},
		{"payload", FilterPayload(func(m map[string]any) bool { return m["n"] == 3 }), true},
		{"payload wrong type", FilterPayload(func(s string) bool { return true }), false},
		{"and", FilterAnd(FilterBySource("dock"), FilterHasMetadata("priority")), true},
		{"and fails", FilterAnd(FilterBySource("dock"), FilterHasMetadata("x")), false},
		{"or", FilterOr(FilterBySource("tray"), FilterHasMetadata("priority")), true},
		{"not", FilterNot(FilterBySource("dock")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(ev))
		})
	}
}

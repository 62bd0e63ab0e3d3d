package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pradyumna-smpx/gqutils/pkg/cursor"
)

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		args Args
		want Window
	}{
		{
			name: "no arguments",
			args: Args{},
			want: Window{Limit: 20, Offset: 0},
		},
		{
			name: "first only",
			args: Args{First: intPtr(10)},
			want: Window{Limit: 10, Offset: 0},
		},
		{
			name: "first and after",
			args: Args{First: intPtr(10), After: strPtr(cursor.Encode(5))},
			want: Window{Limit: 10, Offset: 5},
		},
		{
			name: "after only uses default limit",
			args: Args{After: strPtr(cursor.Encode(40))},
			want: Window{Limit: 20, Offset: 40},
		},
		{
			name: "legacy numeric after cursor",
			args: Args{First: intPtr(3), After: strPtr("7")},
			want: Window{Limit: 3, Offset: 7},
		},
		{
			name: "malformed after cursor restarts at zero",
			args: Args{First: intPtr(3), After: strPtr("abc")},
			want: Window{Limit: 3, Offset: 0},
		},
		{
			name: "last and before without underflow",
			args: Args{Last: intPtr(5), Before: strPtr(cursor.Encode(30))},
			want: Window{Limit: 5, Offset: 25},
		},
		{
			name: "last and before with underflow clamps",
			args: Args{Last: intPtr(5), Before: strPtr(cursor.Encode(3))},
			want: Window{Limit: 3, Offset: 0},
		},
		{
			// Preserved behaviour: a missing before cursor decodes to 0,
			// so last alone always produces an empty window.
			name: "last without before yields empty window",
			args: Args{Last: intPtr(5)},
			want: Window{Limit: 0, Offset: 0},
		},
		{
			name: "before without last subtracts default limit",
			args: Args{Before: strPtr(cursor.Encode(50))},
			want: Window{Limit: 20, Offset: 30},
		},
		{
			name: "forward wins over backward",
			args: Args{First: intPtr(4), Last: intPtr(9), Before: strPtr(cursor.Encode(3))},
			want: Window{Limit: 4, Offset: 0},
		},
		{
			name: "zero first counts as unset",
			args: Args{First: intPtr(0)},
			want: Window{Limit: 20, Offset: 0},
		},
		{
			name: "empty after counts as unset",
			args: Args{After: strPtr("")},
			want: Window{Limit: 20, Offset: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.args))
		})
	}
}

func TestArgsFromMap(t *testing.T) {
	args := ArgsFromMap(map[string]any{
		"first":  10,
		"after":  cursor.Encode(5),
		"last":   nil,
		"before": 12,
		"other":  "ignored",
	})

	if assert.NotNil(t, args.First) {
		assert.Equal(t, 10, *args.First)
	}
	if assert.NotNil(t, args.After) {
		assert.Equal(t, cursor.Encode(5), *args.After)
	}
	assert.Nil(t, args.Last)
	if assert.NotNil(t, args.Before) {
		assert.Equal(t, "12", *args.Before)
	}

	assert.Equal(t, Window{Limit: 10, Offset: 5}, Resolve(args))
}

func TestArgsFromMapNumericCursors(t *testing.T) {
	// JSON variables decode numbers as float64.
	args := ArgsFromMap(map[string]any{"after": float64(1000000)})
	if assert.NotNil(t, args.After) {
		assert.Equal(t, "1000000", *args.After)
	}
	assert.Equal(t, Window{Offset: 1000000, Limit: DefaultLimit}, Resolve(args))

	args = ArgsFromMap(map[string]any{"after": int64(42), "before": int32(50)})
	if assert.NotNil(t, args.After) {
		assert.Equal(t, "42", *args.After)
	}
	if assert.NotNil(t, args.Before) {
		assert.Equal(t, "50", *args.Before)
	}
}

func TestArgsFromMapEmpty(t *testing.T) {
	assert.Equal(t, Args{}, ArgsFromMap(nil))
}

package stdb

import (
	"fmt"

	"github.com/gobwas/glob"
)

// TraceFilter selects tables whose row events are logged at trace level
type TraceFilter struct {
	tableGlobs []glob.Glob
}

// NewTraceFilter compiles glob patterns over table names.
// No patterns means no tracing: the filter is nil and matches nothing.
func NewTraceFilter(patterns []string) (*TraceFilter, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	filter := &TraceFilter{
		tableGlobs: make([]glob.Glob, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid trace pattern %q: %w", pattern, err)
		}
		filter.tableGlobs = append(filter.tableGlobs, g)
	}

	return filter, nil
}

// Match returns true if the table's row events should be traced.
// Safe on a nil filter.
func (f *TraceFilter) Match(table string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.tableGlobs {
		if g.Match(table) {
			return true
		}
	}
	return false
}

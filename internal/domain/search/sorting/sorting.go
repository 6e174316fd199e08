// Package sorting holds the sort options offered by a search view.
package sorting

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/curator/internal/domain"
)

// Option is one sort order the search endpoint understands.
type Option struct {
	Field string
	Label string
}

// DefaultOptions is the sort menu used when none is configured.
func DefaultOptions() []Option {
	return []Option{
		{Field: "nr_views", Label: "Most viewed"},
		{Field: "nr_attempts", Label: "Most attempted"},
		{Field: "avg_grade", Label: "Highest average grade"},
	}
}

// Options is the current sort option plus the ones that can replace it.
type Options struct {
	current   Option
	available []Option
}

// New builds the menu from an ordered list. The option whose field equals
// initial becomes current; otherwise the first option does.
func New(all []Option, initial string) (Options, error) {
	if len(all) == 0 {
		return Options{}, fmt.Errorf("%w: no sort options", domain.ErrInvalidSort)
	}
	idx := slices.IndexFunc(all, func(o Option) bool { return o.Field == initial })
	if idx < 0 {
		idx = 0
	}
	available := make([]Option, 0, len(all)-1)
	available = append(available, all[:idx]...)
	available = append(available, all[idx+1:]...)
	return Options{current: all[idx], available: available}, nil
}

// Current returns the active sort option.
func (o Options) Current() Option { return o.current }

// Available returns the options that are not active, in menu order.
func (o Options) Available() []Option { return slices.Clone(o.available) }

// Select moves field from available to current and puts the replaced
// option back into available at the position field occupied.
func (o Options) Select(field string) (Options, error) {
	if field == o.current.Field {
		return o, nil
	}
	idx := slices.IndexFunc(o.available, func(opt Option) bool { return opt.Field == field })
	if idx < 0 {
		return o, fmt.Errorf("%w: %q", domain.ErrInvalidSort, field)
	}
	available := slices.Clone(o.available)
	chosen := available[idx]
	available[idx] = o.current
	return Options{current: chosen, available: available}, nil
}

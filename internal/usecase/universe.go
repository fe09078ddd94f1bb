package usecase

import (
	"fmt"
	"sort"
	"strings"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/services/forecast"
)

// Target is one symbol scheduled for a stage.
type Target struct {
	forecast.Subject
	Key    domrepo.BarKey
	Policy models.MarketPolicy
}

// Universe is the configured set of market groups and their symbols.
type Universe struct {
	Policies map[string]models.MarketPolicy
	Symbols  map[string][]string
	Interval domrepo.Interval
}

// Groups returns the selected group, or every configured group in order.
func (u Universe) Groups(group string) ([]string, error) {
	if group == "" {
		return models.SortedGroups(u.Policies), nil
	}
	group = strings.ToUpper(group)
	if _, ok := u.Policies[group]; !ok {
		return nil, fmt.Errorf("unknown market group %q", group)
	}
	return []string{group}, nil
}

// Targets expands the selected groups into per-symbol targets with the run
// overrides applied to each policy.
func (u Universe) Targets(opts RunOptions) ([]Target, error) {
	groups, err := u.Groups(opts.Group)
	if err != nil {
		return nil, err
	}
	var out []Target
	for _, g := range groups {
		policy := opts.Apply(u.Policies[g])
		if err := policy.Validate(); err != nil {
			return nil, err
		}
		symbols := append([]string(nil), u.Symbols[g]...)
		sort.Strings(symbols)
		for _, sym := range symbols {
			out = append(out, Target{
				Subject: forecast.Subject{Symbol: sym, Exchange: policy.Exchange, Group: g},
				Key:     domrepo.BarKey{Exchange: policy.Exchange, Symbol: sym, Interval: u.Interval},
				Policy:  policy,
			})
		}
	}
	return out, nil
}

// byGroup splits targets by market group, keeping their order.
func byGroup(targets []Target) (map[string][]Target, []string) {
	out := make(map[string][]Target)
	var groups []string
	for _, t := range targets {
		if _, ok := out[t.Group]; !ok {
			groups = append(groups, t.Group)
		}
		out[t.Group] = append(out[t.Group], t)
	}
	return out, groups
}

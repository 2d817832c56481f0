// Package assembly compiles a saved assembly configuration into an
// executable predicate and sort order over entries.
package assembly

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"organaizer/api/internal/store"
)

// FilterType names one kind of AND-filter an assembly can carry.
type FilterType string

const (
	FilterDate   FilterType = "Date"
	FilterKind   FilterType = "Type"
	FilterStatus FilterType = "Status"
	FilterVoting FilterType = "Voting"
	FilterStars  FilterType = "Stars"
)

// Filter is one configured filter instance within a type.
type Filter struct {
	Value   string
	Visible bool
}

// SortOrder selects the comparator applied to the filtered entries.
type SortOrder string

const (
	SortRank      SortOrder = "Rank"
	SortVoting    SortOrder = "Voting"
	SortStars     SortOrder = "Stars"
	SortType      SortOrder = "Type"
	SortStatus    SortOrder = "Status"
	SortCreatedAt SortOrder = "CreatedAt"
	SortUpdatedAt SortOrder = "UpdatedAt"
)

// Spec is the declarative view configuration as persisted for an assembly.
type Spec struct {
	Includes  []string
	Excludes  []string
	Filters   map[FilterType][]Filter
	SortOrder SortOrder
}

// Compiled is the executable form of a Spec for one request.
// Predicate decides membership, Less defines the total order.
// Warnings records filter instances that were ignored as malformed.
type Compiled struct {
	Predicate func(store.Entry) bool
	Less      func(a, b store.Entry) bool
	Warnings  []string
}

// Compile translates a Spec into a predicate and comparator.
// It never fails: malformed filter values become inert and are
// reported via Warnings, so a broken filter widens the view instead
// of erroring it.
func Compile(spec Spec) Compiled {
	excludes := toSet(spec.Excludes)
	includes := toSet(spec.Includes)

	var warnings []string
	var typePredicates []func(store.Entry) bool

	for filterType, instances := range spec.Filters {
		pred, warns := compileFilterType(filterType, instances)
		warnings = append(warnings, warns...)
		if pred != nil {
			typePredicates = append(typePredicates, pred)
		}
	}

	predicate := func(e store.Entry) bool {
		// Exclude wins over everything, including an include of the same key.
		if _, excluded := excludes[e.Key]; excluded {
			return false
		}
		// A non-empty include list is an allow-list that bypasses filters.
		if len(includes) > 0 {
			_, included := includes[e.Key]
			return included
		}
		for _, pred := range typePredicates {
			if !pred(e) {
				return false
			}
		}
		return true
	}

	return Compiled{
		Predicate: predicate,
		Less:      comparatorFor(spec.SortOrder),
		Warnings:  warnings,
	}
}

// compileFilterType builds the OR-combined predicate for all instances
// of one filter type. A nil predicate means the type contributes nothing
// (unknown type, or every instance malformed).
func compileFilterType(filterType FilterType, instances []Filter) (func(store.Entry) bool, []string) {
	var warnings []string
	var preds []func(store.Entry) bool

	for _, instance := range instances {
		pred, err := compileInstance(filterType, instance.Value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s filter %q ignored: %v", filterType, instance.Value, err))
			continue
		}
		if pred != nil {
			preds = append(preds, pred)
		}
	}

	if len(preds) == 0 {
		return nil, warnings
	}
	combined := func(e store.Entry) bool {
		for _, pred := range preds {
			if pred(e) {
				return true
			}
		}
		return false
	}
	return combined, warnings
}

func compileInstance(filterType FilterType, value string) (func(store.Entry) bool, error) {
	switch filterType {
	case FilterDate:
		return compileDate(value)
	case FilterKind:
		members := splitValues(value)
		return func(e store.Entry) bool { return members[e.Type] }, nil
	case FilterStatus:
		members := splitValues(value)
		return func(e store.Entry) bool { return members[e.Status] }, nil
	case FilterVoting:
		threshold, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("threshold must be an integer")
		}
		return func(e store.Entry) bool { return e.VoteSum >= threshold }, nil
	case FilterStars:
		threshold, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("threshold must be numeric")
		}
		return func(e store.Entry) bool { return e.Stars >= threshold }, nil
	default:
		// Unknown filter types are tolerated so old assemblies keep
		// working when the editor grows new filter kinds.
		return nil, nil
	}
}

// compileDate parses a "<from>|<to>" range where either bound may be empty.
func compileDate(value string) (func(store.Entry) bool, error) {
	fromRaw, toRaw, found := strings.Cut(value, "|")
	if !found {
		return nil, fmt.Errorf("expected \"from|to\"")
	}

	var from, to time.Time
	var err error
	if strings.TrimSpace(fromRaw) != "" {
		from, err = parseDate(fromRaw)
		if err != nil {
			return nil, fmt.Errorf("bad from bound: %v", err)
		}
	}
	if strings.TrimSpace(toRaw) != "" {
		to, err = parseDate(toRaw)
		if err != nil {
			return nil, fmt.Errorf("bad to bound: %v", err)
		}
	}

	return func(e store.Entry) bool {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			return false
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			return false
		}
		return true
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// comparatorFor returns the less-func for a sort order. Rank ties are
// broken by key so the order stays deterministic even when concurrent
// reorders leave two entries on the same rank; every other order ties
// back to rank ascending.
func comparatorFor(order SortOrder) func(a, b store.Entry) bool {
	byRank := func(a, b store.Entry) bool {
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.Key < b.Key
	}

	switch order {
	case SortVoting:
		return func(a, b store.Entry) bool {
			if a.VoteSum != b.VoteSum {
				return a.VoteSum > b.VoteSum
			}
			return byRank(a, b)
		}
	case SortStars:
		return func(a, b store.Entry) bool {
			if a.Stars != b.Stars {
				return a.Stars > b.Stars
			}
			return byRank(a, b)
		}
	case SortType:
		return func(a, b store.Entry) bool {
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			return byRank(a, b)
		}
	case SortStatus:
		return func(a, b store.Entry) bool {
			if a.Status != b.Status {
				return a.Status < b.Status
			}
			return byRank(a, b)
		}
	case SortCreatedAt:
		return func(a, b store.Entry) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return byRank(a, b)
		}
	case SortUpdatedAt:
		return func(a, b store.Entry) bool {
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
			return byRank(a, b)
		}
	default:
		return byRank
	}
}

// SpecFromConfig converts persisted assembly rows into a compilable Spec.
func SpecFromConfig(a store.Assembly, cfg store.AssemblyConfig) Spec {
	filters := make(map[FilterType][]Filter)
	for _, row := range cfg.Filters {
		filterType := FilterType(row.FilterType)
		filters[filterType] = append(filters[filterType], Filter{
			Value:   row.Value,
			Visible: row.VisibleInView,
		})
	}
	return Spec{
		Includes:  cfg.Includes,
		Excludes:  cfg.Excludes,
		Filters:   filters,
		SortOrder: SortOrder(a.SortOrder),
	}
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

func splitValues(value string) map[string]bool {
	members := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			members[part] = true
		}
	}
	return members
}

package core

import (
	"math"
	"sort"
)

// BudgetStatus compares a month's spend against its budget.
type BudgetStatus string

const (
	BudgetUnset BudgetStatus = ""
	UnderBudget BudgetStatus = "under"
	OverBudget  BudgetStatus = "over"
)

// CategoryTotal is the all-time spend of a resolved category.
type CategoryTotal struct {
	Category Category
	Sum      float64
}

// MonthEntry is one category's spend (forbruk) and budget (budsjett) in a month.
type MonthEntry struct {
	Category Category
	Forbruk  float64
	Budsjett Budget
}

// Status reports over/under only when a budget is set. The comparison uses
// the magnitude of the spend, so refunds and expenses compare alike.
func (e MonthEntry) Status() BudgetStatus {
	if !e.Budsjett.Set {
		return BudgetUnset
	}
	if math.Abs(e.Forbruk) > e.Budsjett.Value {
		return OverBudget
	}
	return UnderBudget
}

// MonthBreakdown groups the entries of one "YYYY-MM" month.
type MonthBreakdown struct {
	Key     string
	Entries []MonthEntry
}

// Summary is the aggregated, sorted form of a Document.
type Summary struct {
	Categories []CategoryTotal
	Total      float64
	Months     []MonthBreakdown
}

// ShowTotal reports whether the synthetic total row belongs in the view.
func (s Summary) ShowTotal() bool {
	return s.Total != 0
}

// Summarize joins the raw aggregates to their categories and orders them for
// display. Entries whose category id is unknown are dropped. doc is not modified.
func Summarize(doc Document) Summary {
	byID := make(map[string]Category, len(doc.Categories))
	for _, c := range doc.Categories {
		byID[c.ID] = c
	}

	var s Summary
	for _, item := range doc.ByCategory {
		c, ok := byID[item.CategoryID]
		if !ok {
			continue
		}
		s.Categories = append(s.Categories, CategoryTotal{Category: c, Sum: float64(item.Sum)})
		s.Total += float64(item.Sum)
	}
	sort.SliceStable(s.Categories, func(i, j int) bool {
		return math.Abs(s.Categories[i].Sum) > math.Abs(s.Categories[j].Sum)
	})

	for _, key := range monthKeys(doc) {
		s.Months = append(s.Months, summarizeMonth(key, doc.ByMonthByCategory[key], doc.ByMonthBudget[key], byID))
	}
	return s
}

// monthKeys returns the union of spend and budget months, newest first.
// Keys are zero-padded YYYY-MM, so reverse lexicographic order is
// reverse chronological order.
func monthKeys(doc Document) []string {
	seen := make(map[string]struct{}, len(doc.ByMonthByCategory)+len(doc.ByMonthBudget))
	for k := range doc.ByMonthByCategory {
		seen[k] = struct{}{}
	}
	for k := range doc.ByMonthBudget {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

func summarizeMonth(key string, sums map[string]Amount, budgets map[string]Budget, byID map[string]Category) MonthBreakdown {
	ids := make([]string, 0, len(sums)+len(budgets))
	seen := make(map[string]struct{}, len(sums)+len(budgets))
	for id := range sums {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range budgets {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	// Map iteration is random; fix the order before the stable sort so
	// equal magnitudes render the same way on every call.
	sort.Strings(ids)

	m := MonthBreakdown{Key: key}
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		m.Entries = append(m.Entries, MonthEntry{
			Category: c,
			Forbruk:  float64(sums[id]),
			Budsjett: budgets[id],
		})
	}
	sort.SliceStable(m.Entries, func(i, j int) bool {
		return math.Abs(m.Entries[i].Forbruk) > math.Abs(m.Entries[j].Forbruk)
	})
	return m
}

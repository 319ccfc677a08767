// Package view derives the display model of the summary page from an
// export document. Build is pure: every call re-derives the whole view and
// nothing is kept between calls.
package view

import (
	"budsjett/internal/core"
)

const (
	TotalLabel      = "Totalt"
	UpdatedPrefix   = "Sist oppdatert: "
	ClassPositive   = "positive"
	ClassNegative   = "negative"
	amountSeparator = " / "
)

// View is everything the templates need. HasData selects between the
// mutually exclusive "no data" and "has data" sections.
type View struct {
	HasData    bool
	Updated    string
	Categories []Row
	Months     []Month
}

// Row is one line of the category list.
type Row struct {
	Name   string
	Amount string
	Class  string
	Total  bool
}

// Month is one block of the month breakdown.
type Month struct {
	Key     string
	Label   string
	Entries []Entry
}

// Entry shows "<forbruk> / <budsjett>" for one category. Class is "over",
// "under" or empty when no budget was set.
type Entry struct {
	Name  string
	Text  string
	Class string
}

// NoMonths reports whether the month container should show its empty notice.
func (v View) NoMonths() bool {
	return len(v.Months) == 0
}

// Build renders raw with f. Documents failing the validity gate give the
// zero View, i.e. the "no data" state.
func Build(raw core.Raw, f core.Formatter) View {
	doc, ok := raw.Decode()
	if !ok {
		return View{}
	}
	return FromDocument(doc, f)
}

// FromDocument renders an already decoded document.
func FromDocument(doc core.Document, f core.Formatter) View {
	s := core.Summarize(doc)

	exportedAt := ""
	if doc.Meta != nil {
		exportedAt = doc.Meta.ExportedAt
	}

	v := View{
		HasData: true,
		Updated: UpdatedPrefix + f.Timestamp(exportedAt),
	}

	for _, c := range s.Categories {
		v.Categories = append(v.Categories, Row{
			Name:   c.Category.Label(),
			Amount: f.Amount(c.Sum),
			Class:  signClass(c.Sum),
		})
	}
	if s.ShowTotal() {
		v.Categories = append(v.Categories, Row{
			Name:   TotalLabel,
			Amount: f.Amount(s.Total),
			Class:  signClass(s.Total),
			Total:  true,
		})
	}

	for _, m := range s.Months {
		month := Month{Key: m.Key, Label: f.MonthLabel(m.Key)}
		for _, e := range m.Entries {
			month.Entries = append(month.Entries, entry(e, f))
		}
		v.Months = append(v.Months, month)
	}
	return v
}

func entry(e core.MonthEntry, f core.Formatter) Entry {
	out := Entry{Name: e.Category.Label()}
	status := e.Status()
	if status == core.BudgetUnset {
		out.Text = f.Amount(e.Forbruk) + amountSeparator + f.NoBudget()
		return out
	}
	out.Text = f.Amount(e.Forbruk) + amountSeparator + f.Amount(e.Budsjett.Value)
	out.Class = string(status)
	return out
}

func signClass(v float64) string {
	if v >= 0 {
		return ClassPositive
	}
	return ClassNegative
}

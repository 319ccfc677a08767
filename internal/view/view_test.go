package view

import (
	"strings"
	"testing"
	"time"

	"budsjett/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func testFormatter() core.Formatter {
	return core.NewFormatter(language.MustParse("nb-NO"), "kr", time.UTC)
}

func build(t *testing.T, in string) View {
	t.Helper()
	raw, err := core.ParseDocument([]byte(in))
	require.NoError(t, err)
	return Build(raw, testFormatter())
}

func TestBuildNoData(t *testing.T) {
	for _, in := range []string{
		`null`,
		`[]`,
		`"x"`,
		`{}`,
		`{"categories":[]}`,
		`{"byCategory":[]}`,
		`{"categories":null,"byCategory":[]}`,
	} {
		v := build(t, in)
		assert.False(t, v.HasData, "input %s", in)
		assert.Empty(t, v.Categories)
		assert.Empty(t, v.Months)
	}
	assert.False(t, Build(nil, testFormatter()).HasData)
}

func TestBuildExampleDocument(t *testing.T) {
	v := build(t, `{"categories":[{"id":"a","name":"Mat"}],"byCategory":[{"categoryId":"a","sum":-1200}]}`)
	f := testFormatter()

	require.True(t, v.HasData)
	assert.Equal(t, "Sist oppdatert: –", v.Updated)
	require.Len(t, v.Categories, 2)

	assert.Equal(t, Row{Name: "Mat", Amount: f.Amount(-1200), Class: ClassNegative}, v.Categories[0])
	assert.Equal(t, Row{Name: TotalLabel, Amount: f.Amount(-1200), Class: ClassNegative, Total: true}, v.Categories[1])
	assert.True(t, v.NoMonths())
}

func TestBuildCategoryRows(t *testing.T) {
	v := build(t, `{
		"meta":{"exportedAt":"2026-10-19T14:30:00Z"},
		"categories":[{"id":"a","name":"Lønn","icon":"💰"},{"id":"b","name":"Husleie"},{"id":"c","name":"Mat"}],
		"byCategory":[
			{"categoryId":"c","sum":-3000},
			{"categoryId":"a","sum":45000},
			{"categoryId":"x","sum":-1},
			{"categoryId":"b","sum":-12000}
		]}`)
	f := testFormatter()

	assert.Equal(t, "Sist oppdatert: 19. okt. 2026, 14:30", v.Updated)
	require.Len(t, v.Categories, 4)
	assert.Equal(t, "💰 Lønn", v.Categories[0].Name)
	assert.Equal(t, ClassPositive, v.Categories[0].Class)
	assert.Equal(t, "Husleie", v.Categories[1].Name)
	assert.Equal(t, "Mat", v.Categories[2].Name)

	total := v.Categories[3]
	assert.True(t, total.Total)
	assert.Equal(t, f.Amount(30000), total.Amount)
	assert.Equal(t, ClassPositive, total.Class)
}

func TestBuildMonthEntries(t *testing.T) {
	v := build(t, `{
		"categories":[{"id":"mat","name":"Mat"},{"id":"bil","name":"Bil"}],
		"byCategory":[],
		"byMonthByCategory":{"2024-05":{"mat":-600,"bil":-100},"2024-04":{"mat":-50}},
		"byMonthBudget":{"2024-05":{"mat":500}}
	}`)
	f := testFormatter()

	require.True(t, v.HasData)
	assert.Empty(t, v.Categories, "empty byCategory gives no rows and no total")
	require.Len(t, v.Months, 2)
	assert.Equal(t, "Mai 2024", v.Months[0].Label)
	assert.Equal(t, "April 2024", v.Months[1].Label)

	may := v.Months[0].Entries
	require.Len(t, may, 2)
	assert.Equal(t, Entry{Name: "Mat", Text: f.Amount(-600) + " / " + f.Amount(500), Class: "over"}, may[0])
	assert.Equal(t, "Bil", may[1].Name)
	assert.Empty(t, may[1].Class)
	assert.True(t, strings.HasSuffix(may[1].Text, " / – kr"), "got %q", may[1].Text)
}

func TestBuildIsRepeatable(t *testing.T) {
	in := `{
		"categories":[{"id":"a","name":"A"},{"id":"b","name":"B"}],
		"byCategory":[{"categoryId":"a","sum":5},{"categoryId":"b","sum":-5}],
		"byMonthByCategory":{"2024-01":{"a":7,"b":-7}},
		"byMonthBudget":{"2024-01":{"a":"","b":10}}
	}`
	first := build(t, in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build(t, in))
	}
}

func TestBuildToleratesOddlyTypedValues(t *testing.T) {
	v := build(t, `{
		"meta":{"exportedAt":1700000000000},
		"categories":[{"id":"a","name":"Mat"}],
		"byCategory":[{"categoryId":"a","sum":-1200}],
		"byMonthBudget":{"2024-01":{"a":true}}
	}`)
	f := testFormatter()

	require.True(t, v.HasData)
	assert.Equal(t, "Sist oppdatert: 14. nov. 2023, 22:13", v.Updated)
	require.Len(t, v.Categories, 2)
	assert.Equal(t, "Mat", v.Categories[0].Name)

	require.Len(t, v.Months, 1)
	assert.Equal(t, []Entry{{Name: "Mat", Text: f.Amount(0) + " / " + f.Amount(1), Class: "under"}}, v.Months[0].Entries)
}

func TestBuildHugeSumKeepsSign(t *testing.T) {
	v := build(t, `{"categories":[{"id":"a","name":"Mat"}],"byCategory":[{"categoryId":"a","sum":1e300}]}`)

	require.Len(t, v.Categories, 2)
	for _, row := range v.Categories {
		assert.Equal(t, ClassPositive, row.Class)
		assert.False(t, strings.ContainsAny(row.Amount, "-−"), "row %q shows %q", row.Name, row.Amount)
	}
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	windowagg "github.com/goliatone/go-windowagg"
)

func testFunctions() []windowagg.Function {
	return []windowagg.Function{
		{Name: "SUM", DisplayName: "Sum", Kind: "AGGREGATE", ArgTypes: []windowagg.FieldType{windowagg.TypeLong, windowagg.TypeDouble}},
		{Name: "AVG", Kind: "AGGREGATE", ReturnType: windowagg.TypeDouble},
		{Name: "UPPER", Kind: "FUNCTION", ReturnType: windowagg.TypeString},
		{Name: "SUM", DisplayName: "Shadowed", Kind: "AGGREGATE"},
	}
}

func TestAggregates_FiltersAndDedupes(t *testing.T) {
	c := Aggregates(testFunctions())

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"AVG", "SUM"}, c.Names())

	fn, ok := c.Lookup("SUM")
	assert.True(t, ok)
	assert.Equal(t, "Sum", fn.DisplayName)

	_, ok = c.Lookup("UPPER")
	assert.False(t, ok)
}

func TestLookup_CaseInsensitiveFallback(t *testing.T) {
	c := Aggregates(testFunctions())

	fn, ok := c.Lookup("avg")
	assert.True(t, ok)
	assert.Equal(t, "AVG", fn.Name)
	assert.Equal(t, "AVG", c.DisplayName("avg"))
	assert.Equal(t, "", c.DisplayName(""))
	assert.Equal(t, "", c.DisplayName("missing"))
}

func TestAccepts(t *testing.T) {
	c := Aggregates(testFunctions())
	sum, _ := c.Lookup("SUM")
	avg, _ := c.Lookup("AVG")

	assert.True(t, Accepts(sum, windowagg.TypeLong))
	assert.False(t, Accepts(sum, windowagg.TypeString))
	assert.True(t, Accepts(sum, windowagg.TypeUnset))
	assert.True(t, Accepts(avg, windowagg.TypeString))
}

func TestHints(t *testing.T) {
	c := Aggregates(testFunctions())
	hints := c.FunctionHints()
	if assert.Len(t, hints, 2) {
		assert.Equal(t, "SUM(", hints[0].Text)
		assert.Equal(t, HintFunction, hints[0].Kind)
	}

	args := ArgumentHints([]string{"a", "b.c"}, []windowagg.FieldType{windowagg.TypeLong})
	if assert.Len(t, args, 2) {
		assert.Equal(t, windowagg.TypeLong, args[0].Type)
		assert.Equal(t, windowagg.TypeUnset, args[1].Type)
		assert.Equal(t, HintArgument, args[1].Kind)
	}
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	_, ok := c.Lookup("SUM")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Names())
}

package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectHeader(t *testing.T) {
	tests := []struct {
		name   string
		first  []string
		second []string
		header bool
	}{
		{"text over numbers", []string{"A", "B", "C"}, []string{"1", "2", "3"}, true},
		{"numbers over numbers", []string{"1", "2", "3"}, []string{"4", "5", "6"}, false},
		{"dates count as numeric", []string{"2024-01-05", "15/02/2024", "ABC"}, []string{"2024-01-06", "16/02/2024", "DEF"}, false},
		{"duplicates with blanks are data", []string{"NSE", "NSE", "", "x"}, []string{"BSE", "y", "z", "w"}, false},
		{"duplicates with numbers are data", []string{"CM", "CM", "12"}, nil, false},
		{"duplicate text header is still a header", []string{"Name", "Name", "Code"}, []string{"Bob", "Ann", "7"}, true},
		{"text over text is ambiguous: header", []string{"Code", "Name"}, []string{"A1", "Alice"}, true},
		{"single row defaults to header", []string{"Code", "Name"}, nil, true},
		{"same mixed shape as next row", []string{"ABC", "12", "XYZ", "34", "Q"}, []string{"DEF", "56", "UVW", "78", "R"}, false},
		{"empty first row", []string{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.header, DetectHeader(tt.first, tt.second))
		})
	}
}

func TestIsNumericOrDate(t *testing.T) {
	for _, v := range []string{"1", "-2.5", "1e6", ".5", "1,234.50", "2024-01-31", "31/01/2024", "31-Jan-2024", "5 March 24", " 42 "} {
		assert.True(t, isNumericOrDate(v), v)
	}
	for _, v := range []string{"", "abc", "A1", "12abc", "1,23", "Jan"} {
		assert.False(t, isNumericOrDate(v), v)
	}
}

func TestResolveHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"Code", "Column2", "Name", "Name_1", "Name_2"},
		ResolveHeaders([]string{"Code", "", "Name", "Name", " Name "}),
	)

	assert.Equal(t,
		[]string{"Name_1", "Name", "Name_2"},
		ResolveHeaders([]string{"Name_1", "Name", "Name"}),
		"suffixes skip names already taken",
	)

	assert.Equal(t, []string{"Code"}, ResolveHeaders([]string{"\ufeffCode"}))
	assert.Equal(t, []string{"Column1", "Column2", "Column3"}, SyntheticHeaders(3))
}

func TestCoerceValue(t *testing.T) {
	assert.Nil(t, CoerceValue(""))
	assert.Nil(t, CoerceValue("   "))
	assert.Equal(t, int64(42), CoerceValue("42"))
	assert.Equal(t, int64(-7), CoerceValue("-7"))
	assert.Equal(t, 2.5, CoerceValue("2.5"))
	assert.Equal(t, 0.5, CoerceValue("0.5"))
	assert.Equal(t, int64(0), CoerceValue("0"))
	assert.Equal(t, "007", CoerceValue("007"))
	assert.Equal(t, "Alice", CoerceValue("Alice"))
	assert.Equal(t, "1,234", CoerceValue("1,234"))
	assert.Equal(t, "100000000000000000000", CoerceValue("100000000000000000000"))
	assert.Equal(t, int64(9007199254740992), CoerceValue("9007199254740992"))
	assert.Equal(t, "12345678901234567", CoerceValue("12345678901234567"))
	assert.Equal(t, "-12345678901234567", CoerceValue("-12345678901234567"))
	assert.Equal(t, 1.5e20, CoerceValue("1.5e20"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "Alice", FormatValue("Alice"))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "42", FormatValue(float64(42)))
	assert.Equal(t, "2.5", FormatValue(2.5))
	assert.Equal(t, "7", FormatValue(7))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "12345678901234567", FormatValue(json.Number("12345678901234567")))
	assert.Equal(t, "2.50", FormatValue(json.Number("2.50")))
}

func TestBuildRow(t *testing.T) {
	headers := []string{"Code", "Name", "City"}

	short := buildRow(headers, []string{"1", "Alice"})
	assert.Equal(t, Row{"Code": int64(1), "Name": "Alice", "City": nil}, short)

	long := buildRow(headers, []string{"2", "Bob", "Pune", "extra"})
	assert.Equal(t, "extra", long["Column4"])
}

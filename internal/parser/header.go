package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numericPattern   = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	groupedPattern   = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	leadingZero      = regexp.MustCompile(`^[-+]?0\d`)
	integerPattern   = regexp.MustCompile(`^[-+]?\d+$`)
	isoDatePattern   = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}([ T]\d{1,2}:\d{2}(:\d{2})?)?$`)
	dayFirstPattern  = regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}$`)
	monthNamePattern = regexp.MustCompile(`(?i)^\d{1,2}[- ](jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[- ]\d{2,4}$`)
)

// isNumericOrDate reports whether a cell looks like a number or a date.
func isNumericOrDate(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return false
	}
	return numericPattern.MatchString(s) ||
		groupedPattern.MatchString(s) ||
		isoDatePattern.MatchString(s) ||
		dayFirstPattern.MatchString(s) ||
		monthNamePattern.MatchString(s)
}

func numericRatio(row []string) float64 {
	if len(row) == 0 {
		return 0
	}
	n := 0
	for _, cell := range row {
		if isNumericOrDate(cell) {
			n++
		}
	}
	return float64(n) / float64(len(row))
}

func hasBlankOrNumeric(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" || isNumericOrDate(cell) {
			return true
		}
	}
	return false
}

func hasDuplicates(row []string) bool {
	seen := make(map[string]bool, len(row))
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

// DetectHeader decides whether first is a header row, looking at second
// (nil when the file has a single row) for shape comparison.
func DetectHeader(first, second []string) bool {
	if len(first) == 0 {
		return false
	}

	r1 := numericRatio(first)
	if r1 >= 0.5 {
		return false
	}

	if hasDuplicates(first) && hasBlankOrNumeric(first) {
		return false
	}

	if second == nil {
		return true
	}

	r2 := numericRatio(second)
	if r1 < 0.3 && r2 > 0.5 {
		return true
	}

	// first row has the same mixed shape as the row after it
	if r1 >= 0.4 && math.Abs(r1-r2) < 0.1 {
		return false
	}

	return true
}

// ResolveHeaders fills blank names with ColumnK and suffixes repeats
// with _1, _2, ... so every column name is unique.
func ResolveHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	counts := make(map[string]int, len(raw))

	for i, h := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}

		candidate := name
		for used[candidate] {
			counts[name]++
			candidate = fmt.Sprintf("%s_%d", name, counts[name])
		}

		used[candidate] = true
		out[i] = candidate
	}

	return out
}

// SyntheticHeaders returns Column1..ColumnN.
func SyntheticHeaders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Column%d", i+1)
	}
	return out
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// CoerceValue converts a raw cell: blank becomes nil, plain numbers become
// int64 or float64, everything else stays a string. Values with leading
// zeros (client codes, ISINs) and integers beyond ±2^53 are kept verbatim.
func CoerceValue(cell string) interface{} {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if !numericPattern.MatchString(s) || leadingZero.MatchString(s) {
		return cell
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if i > maxExactInt || i < -maxExactInt {
			return cell
		}
		return i
	}
	if integerPattern.MatchString(s) {
		return cell
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
		return f
	}
	return cell
}

// FormatValue renders a row value back to its delimited-text form.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func buildRow(headers []string, record []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = CoerceValue(record[i])
		} else {
			row[h] = nil
		}
	}
	for i := len(headers); i < len(record); i++ {
		row[fmt.Sprintf("Column%d", i+1)] = CoerceValue(record[i])
	}
	return row
}

package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

type batchRecorder struct {
	starts []int
	rows   [][]Row
}

func (b *batchRecorder) collect(rows []Row, start int) error {
	b.starts = append(b.starts, start)
	b.rows = append(b.rows, rows)
	return nil
}

func (b *batchRecorder) total() int {
	n := 0
	for _, r := range b.rows {
		n += len(r)
	}
	return n
}

func TestParseCSVWithHeader(t *testing.T) {
	input := "Code,Name\n1,Alice\n2,Bob\n3,Carol\n"
	rec := &batchRecorder{}

	res, err := ParseCSV(context.Background(), strings.NewReader(input), Options{ChunkSize: 2}, rec.collect)
	require.NoError(t, err)

	assert.True(t, res.HasHeader)
	assert.Equal(t, []string{"Code", "Name"}, res.Headers)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, ",", res.Delimiter)

	require.Len(t, rec.rows, 2)
	assert.Equal(t, []int{0, 2}, rec.starts)
	assert.Equal(t, []Row{
		{"Code": int64(1), "Name": "Alice"},
		{"Code": int64(2), "Name": "Bob"},
	}, rec.rows[0])
	assert.Equal(t, []Row{{"Code": int64(3), "Name": "Carol"}}, rec.rows[1])
}

func TestParseCSVWithoutHeader(t *testing.T) {
	rec := &batchRecorder{}
	res, err := ParseCSV(context.Background(), strings.NewReader("1,2,3\n4,5,6\n"), Options{ChunkSize: 10}, rec.collect)
	require.NoError(t, err)

	assert.False(t, res.HasHeader)
	assert.Equal(t, []string{"Column1", "Column2", "Column3"}, res.Headers)
	assert.Equal(t, 2, res.TotalRows)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, Row{"Column1": int64(1), "Column2": int64(2), "Column3": int64(3)}, rec.rows[0][0])
}

func TestParseCSVDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		delim string
	}{
		{"comma", "Code,Name\n1,A\n", ","},
		{"tab", "Code\tName\n1\tA\n", "\t"},
		{"pipe", "Code|Name\n1|A\n", "|"},
		{"semicolon", "Code;Name\n1;A\n", ";"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &batchRecorder{}
			res, err := ParseCSV(context.Background(), strings.NewReader(tt.input), Options{}, rec.collect)
			require.NoError(t, err)
			assert.Equal(t, tt.delim, res.Delimiter)
			assert.Equal(t, []string{"Code", "Name"}, res.Headers)
			require.Len(t, rec.rows, 1)
			assert.Equal(t, "A", rec.rows[0][0]["Name"])
		})
	}

	t.Run("Override", func(t *testing.T) {
		res, err := ParseCSV(context.Background(), strings.NewReader("a;b,c\n"), Options{Delimiter: ','}, nil)
		require.NoError(t, err)
		assert.Equal(t, ",", res.Delimiter)
	})
}

func TestParseCSVEdgeCases(t *testing.T) {
	t.Run("BOM", func(t *testing.T) {
		res, err := ParseCSV(context.Background(), strings.NewReader("\xEF\xBB\xBFCode,Name\n1,A\n"), Options{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Code", "Name"}, res.Headers)
	})

	t.Run("BlankRowsSkipped", func(t *testing.T) {
		rec := &batchRecorder{}
		res, err := ParseCSV(context.Background(), strings.NewReader("Code,Name\n\n1,A\n,\n2,B\n"), Options{}, rec.collect)
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalRows)
		assert.Equal(t, 2, rec.total())
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		rec := &batchRecorder{}
		res, err := ParseCSV(context.Background(), strings.NewReader("Code,Name\n"), Options{}, rec.collect)
		require.NoError(t, err)
		assert.True(t, res.HasHeader)
		assert.Equal(t, 0, res.TotalRows)
		assert.Empty(t, rec.rows)
	})

	t.Run("SingleDataRow", func(t *testing.T) {
		res, err := ParseCSV(context.Background(), strings.NewReader("1,2\n"), Options{}, nil)
		require.NoError(t, err)
		assert.False(t, res.HasHeader)
		assert.Equal(t, 1, res.TotalRows)
	})

	t.Run("Empty", func(t *testing.T) {
		res, err := ParseCSV(context.Background(), strings.NewReader(""), Options{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, res.TotalRows)
		assert.Empty(t, res.Headers)
	})

	t.Run("RaggedRows", func(t *testing.T) {
		rec := &batchRecorder{}
		_, err := ParseCSV(context.Background(), strings.NewReader("Code,Name,City\n1,A\n2,B,Pune,X\n"), Options{}, rec.collect)
		require.NoError(t, err)
		require.Len(t, rec.rows, 1)
		assert.Nil(t, rec.rows[0][0]["City"])
		assert.Equal(t, "X", rec.rows[0][1]["Column4"])
	})

	t.Run("LeadingZerosKept", func(t *testing.T) {
		rec := &batchRecorder{}
		_, err := ParseCSV(context.Background(), strings.NewReader("ClientCode,Name\n00123,A\n"), Options{}, rec.collect)
		require.NoError(t, err)
		assert.Equal(t, "00123", rec.rows[0][0]["ClientCode"])
	})

	t.Run("MalformedQuote", func(t *testing.T) {
		_, err := ParseCSV(context.Background(), strings.NewReader("Code,Name\n1,\"Al\"ice\n"), Options{}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrorTypeParse, errors.GetErrorType(err))
	})
}

func TestParseCSVSkipRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("Code,Name\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "%d,Name%d\n", i, i)
	}

	rec := &batchRecorder{}
	res, err := ParseCSV(context.Background(), strings.NewReader(b.String()), Options{ChunkSize: 2, SkipRows: 2}, rec.collect)
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, []int{2, 4}, rec.starts)
	assert.Equal(t, int64(3), rec.rows[0][0]["Code"])
	assert.Equal(t, 3, rec.total())
}

func TestParseCSVBatchesAreBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("Code,Amount\n")
	for i := 0; i < 1003; i++ {
		fmt.Fprintf(&b, "C%d,%d.5\n", i, i)
	}

	rec := &batchRecorder{}
	res, err := ParseCSV(context.Background(), strings.NewReader(b.String()), Options{ChunkSize: 100}, rec.collect)
	require.NoError(t, err)
	assert.Equal(t, 1003, res.TotalRows)
	require.Len(t, rec.rows, 11)

	for i, batch := range rec.rows {
		assert.LessOrEqual(t, len(batch), 100)
		assert.Equal(t, i*100, rec.starts[i])
	}
	assert.Len(t, rec.rows[10], 3)
}

func TestParseCSVAbort(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	calls := 0
	_, err := ParseCSV(ctx, strings.NewReader("Code,Name\n1,A\n2,B\n3,C\n"), Options{ChunkSize: 1},
		func(rows []Row, start int) error {
			calls++
			cancel(errors.ErrPaused)
			return nil
		})

	assert.ErrorIs(t, err, errors.ErrPaused)
	assert.Equal(t, 1, calls, "no batch is delivered after abort")
}

func TestParseCSVCallbackError(t *testing.T) {
	stop := errors.NewSimple("upload failed")
	_, err := ParseCSV(context.Background(), strings.NewReader("Code,Name\n1,A\n2,B\n"), Options{ChunkSize: 1},
		func(rows []Row, start int) error { return stop })
	assert.Equal(t, stop, err)
}

func TestScan(t *testing.T) {
	fh := NewMemoryFile("clients.csv", []byte("Code,Name\n1,Alice\n2,Bob\n3,Carol\n"))

	res, err := Scan(context.Background(), fh, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, []string{"Code", "Name"}, res.Headers)

	rec := &batchRecorder{}
	_, err = Parse(context.Background(), fh, Options{ChunkSize: 2}, rec.collect)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.total())
}

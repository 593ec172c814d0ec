package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/report"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"Exchange=NSE", " Segment = FO ", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Exchange": "NSE", "Segment": "FO", "Empty": ""}, filters)

	filters, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	_, err = parseFilters([]string{"Exchange"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=NSE"})
	assert.Error(t, err)
}

func TestConvertValue(t *testing.T) {
	v, err := convertValue(500, "250")
	require.NoError(t, err)
	assert.Equal(t, 250, v)

	_, err = convertValue(500, "many")
	assert.Error(t, err)

	v, err = convertValue(true, "false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = convertValue([]string{"csv"}, "csv, txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "txt"}, v)

	v, err = convertValue("local", "redis")
	require.NoError(t, err)
	assert.Equal(t, "redis", v)
}

func TestFindItem(t *testing.T) {
	q := &queue.BackgroundUploadQueue{Items: []*queue.FileQueueItem{
		{ID: "abc123", FileName: "clients.csv"},
		{ID: "abd456", FileName: "margins.csv"},
	}}

	assert.Equal(t, "clients.csv", findItem(q, "abc123").FileName)
	assert.Equal(t, "margins.csv", findItem(q, "abd").FileName)
	assert.Nil(t, findItem(q, "ab"), "ambiguous prefix")
	assert.Nil(t, findItem(q, "zzz"))
}

func TestKnownKey(t *testing.T) {
	assert.True(t, knownKey("import.chunk_size"))
	assert.False(t, knownKey("sync.max_concurrent"))
}

func TestSnapshotOf(t *testing.T) {
	s := snapshotOf(upload.Progress{TotalRecords: 4, ProcessedRecords: 2, State: upload.StateUploading})
	assert.Equal(t, 50, s.Percentage())

	s = snapshotOf(upload.Progress{TotalRecords: 4, ProcessedRecords: 4, State: upload.StateCompleted})
	assert.Equal(t, progress.StateCompleted, s.State)
	assert.Equal(t, 100, s.Percentage())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("1234567890"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestReportWriter(t *testing.T) {
	reports := []report.FileReport{{
		FileName:   "clients.csv",
		Rejections: []api.Rejection{{Exchange: "NSE", Code: "3", Status: "N", Remark: "duplicate"}},
	}}

	write, err := reportWriter(".csv", reports, true)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, write(&buf))
	assert.Equal(t, "Exchange,Segment,FileType,Code,Status,Remark\nNSE,,,3,N,duplicate\n", buf.String())

	write, err = reportWriter(".CSV", reports, false)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, write(&buf))
	assert.Equal(t, "FileName,Exchange,Segment,FileType,Code,Status,Remark\nclients.csv,NSE,,,3,N,duplicate\n", buf.String())

	_, err = reportWriter(".json", reports, true)
	assert.Error(t, err)
}

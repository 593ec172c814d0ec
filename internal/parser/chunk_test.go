package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"Seq": int64(i)}
	}
	return rows
}

func TestBuildChunksCoverage(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for size := 1; size <= 7; size++ {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				chunks := BuildChunks(makeRows(n), size, "s-1")

				require.Len(t, chunks, TotalChunks(n, size))

				next := 0
				for i, c := range chunks {
					assert.Equal(t, i, c.ChunkIndex)
					assert.Equal(t, next, c.StartIndex)
					assert.Equal(t, c.StartIndex+c.Len()-1, c.EndIndex)
					assert.Equal(t, len(chunks), c.TotalChunks)
					assert.Equal(t, "s-1", c.SessionID)
					if i < len(chunks)-1 {
						assert.Equal(t, size, c.Len())
					} else {
						assert.LessOrEqual(t, c.Len(), size)
						assert.Greater(t, c.Len(), 0)
					}
					for j, row := range c.Data {
						assert.Equal(t, int64(c.StartIndex+j), row["Seq"])
					}
					next = c.EndIndex + 1
				}
				assert.Equal(t, n, next, "every record lands in exactly one chunk")
			})
		}
	}
}

func TestBuildChunksClients(t *testing.T) {
	rows := []Row{
		{"Code": int64(1), "Name": "Alice"},
		{"Code": int64(2), "Name": "Bob"},
		{"Code": int64(3), "Name": "Carol"},
	}

	chunks := BuildChunks(rows, 2, "abc")
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].StartIndex)
	assert.Equal(t, 1, chunks[0].EndIndex)
	assert.Equal(t, "Alice", chunks[0].Data[0]["Name"])
	assert.Equal(t, "Bob", chunks[0].Data[1]["Name"])

	assert.Equal(t, 2, chunks[1].StartIndex)
	assert.Equal(t, 2, chunks[1].EndIndex)
	assert.Equal(t, "Carol", chunks[1].Data[0]["Name"])
	assert.Equal(t, 2, chunks[1].TotalChunks)
}

func TestNewChunkFromStream(t *testing.T) {
	c := NewChunk(makeRows(3), 2500, 1000, 3, "sess")
	assert.Equal(t, 2, c.ChunkIndex)
	assert.Equal(t, 2500, c.StartIndex)
	assert.Equal(t, 2502, c.EndIndex)
}

func TestChunkSizeFor(t *testing.T) {
	tests := []struct {
		size int64
		rows int
	}{
		{0, 500},
		{512 * 1024, 500},
		{1 * mb, 1000},
		{9 * mb, 1000},
		{10 * mb, 2500},
		{49 * mb, 2500},
		{50 * mb, 5000},
		{100 * mb, 10000},
		{2048 * mb, 10000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.rows, ChunkSizeFor(tt.size), "size %d", tt.size)
	}

	prev := 0
	for s := int64(0); s <= 200*mb; s += 7 * mb {
		cur := ChunkSizeFor(s)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestTotalChunks(t *testing.T) {
	assert.Equal(t, 0, TotalChunks(0, 10))
	assert.Equal(t, 1, TotalChunks(1, 10))
	assert.Equal(t, 1, TotalChunks(10, 10))
	assert.Equal(t, 2, TotalChunks(11, 10))
	assert.Equal(t, 0, TotalChunks(5, 0))
}

package parser

// ChunkData is one upload unit. EndIndex is inclusive.
type ChunkData struct {
	ChunkIndex  int    `json:"chunkIndex"`
	Data        []Row  `json:"data"`
	SessionID   string `json:"sessionId"`
	TotalChunks int    `json:"totalChunks"`
	StartIndex  int    `json:"startIndex"`
	EndIndex    int    `json:"endIndex"`
}

// Len returns the number of records in the chunk.
func (c ChunkData) Len() int {
	return len(c.Data)
}

type chunkStep struct {
	below int64
	rows  int
}

const mb = 1024 * 1024

var chunkSteps = []chunkStep{
	{1 * mb, 500},
	{10 * mb, 1000},
	{50 * mb, 2500},
	{100 * mb, 5000},
}

const maxChunkRows = 10000

// ChunkSizeFor maps a file byte size to rows per chunk.
func ChunkSizeFor(fileSize int64) int {
	for _, step := range chunkSteps {
		if fileSize < step.below {
			return step.rows
		}
	}
	return maxChunkRows
}

// TotalChunks returns ceil(records/chunkSize).
func TotalChunks(records, chunkSize int) int {
	if records <= 0 || chunkSize <= 0 {
		return 0
	}
	return (records + chunkSize - 1) / chunkSize
}

// NewChunk tags a batch of rows with its position in the record stream.
func NewChunk(rows []Row, startIndex, chunkSize, totalChunks int, sessionID string) ChunkData {
	index := 0
	if chunkSize > 0 {
		index = startIndex / chunkSize
	}
	return ChunkData{
		ChunkIndex:  index,
		Data:        rows,
		SessionID:   sessionID,
		TotalChunks: totalChunks,
		StartIndex:  startIndex,
		EndIndex:    startIndex + len(rows) - 1,
	}
}

// BuildChunks partitions rows into consecutive chunks of chunkSize.
func BuildChunks(rows []Row, chunkSize int, sessionID string) []ChunkData {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	total := TotalChunks(len(rows), chunkSize)
	chunks := make([]ChunkData, 0, total)

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, NewChunk(rows[start:end:end], start, chunkSize, total, sessionID))
	}

	return chunks
}

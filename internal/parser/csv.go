package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

const sniffBytes = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var delimiterCandidates = []rune{',', '\t', '|', ';'}

// detectDelimiter picks the most frequent candidate on the first line.
func detectDelimiter(firstLine []byte) rune {
	best, bestCount := ',', 0
	for _, d := range delimiterCandidates {
		n := bytes.Count(firstLine, []byte(string(d)))
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// csvStream tracks header resolution and batching for one parse.
type csvStream struct {
	opts     Options
	onBatch  BatchFunc
	result   *Result
	pending  [][]string
	decided  bool
	buf      []Row
	bufStart int
	index    int
}

// ParseCSV tokenizes delimited text row by row. Peak memory is bounded by
// the batch size. With a nil onBatch rows are only counted.
func ParseCSV(ctx context.Context, r io.Reader, opts Options, onBatch BatchFunc) (*Result, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ChunkSizeFor(0)
	}

	br := bufio.NewReaderSize(r, sniffBytes)
	if b, _ := br.Peek(len(utf8BOM)); bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	delim := opts.Delimiter
	if delim == 0 {
		peek, _ := br.Peek(sniffBytes)
		if i := bytes.IndexByte(peek, '\n'); i >= 0 {
			peek = peek[:i]
		}
		delim = detectDelimiter(peek)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	s := &csvStream{
		opts:    opts,
		onBatch: onBatch,
		result:  &Result{Delimiter: string(delim)},
	}

	for {
		if err := aborted(ctx); err != nil {
			return s.result, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.result, errors.New(errors.ErrorTypeParse, "parse_csv", "", err)
		}

		if isBlankRecord(record) {
			continue
		}

		if err := s.push(record); err != nil {
			return s.result, err
		}
	}

	if !s.decided {
		if err := s.decide(); err != nil {
			return s.result, err
		}
	}

	if err := s.flush(); err != nil {
		return s.result, err
	}

	return s.result, nil
}

func (s *csvStream) push(record []string) error {
	if !s.decided {
		s.pending = append(s.pending, append([]string(nil), record...))
		if len(s.pending) < 2 {
			return nil
		}
		return s.decide()
	}
	return s.data(record)
}

// decide settles the header question from the buffered rows and replays
// whichever of them are data.
func (s *csvStream) decide() error {
	s.decided = true
	if len(s.pending) == 0 {
		return nil
	}

	var second []string
	if len(s.pending) > 1 {
		second = s.pending[1]
	}

	rows := s.pending
	s.pending = nil

	if DetectHeader(rows[0], second) {
		s.result.HasHeader = true
		s.result.Headers = ResolveHeaders(rows[0])
		rows = rows[1:]
	} else {
		s.result.Headers = SyntheticHeaders(len(rows[0]))
	}

	for _, rec := range rows {
		if err := s.data(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *csvStream) data(record []string) error {
	idx := s.index
	s.index++
	s.result.TotalRows = s.index

	if s.onBatch == nil || idx < s.opts.SkipRows {
		return nil
	}

	if len(s.buf) == 0 {
		s.bufStart = idx
		s.buf = make([]Row, 0, s.opts.ChunkSize)
	}
	s.buf = append(s.buf, buildRow(s.result.Headers, record))

	if len(s.buf) >= s.opts.ChunkSize {
		return s.flush()
	}
	return nil
}

func (s *csvStream) flush() error {
	if s.onBatch == nil || len(s.buf) == 0 {
		return nil
	}
	batch := s.buf
	s.buf = nil
	return s.onBatch(batch, s.bufStart)
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}
